package sigv4

// Credential is the process-wide (access_key_id, secret_access_key, region)
// triple looked up by access key id. Per spec.md §3, the credential map is
// built once at startup and is immutable thereafter — no lock is needed
// for reads.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// CredentialStore is an O(1) read-only lookup by access key id.
type CredentialStore struct {
	byAccessKey map[string]Credential
}

// NewCredentialStore builds a store from a slice of credentials. Later
// entries with a duplicate access key id win, matching ordinary map
// construction semantics.
func NewCredentialStore(creds []Credential) *CredentialStore {
	m := make(map[string]Credential, len(creds))
	for _, c := range creds {
		m[c.AccessKeyID] = c
	}
	return &CredentialStore{byAccessKey: m}
}

// Lookup returns the credential for an access key id, if any.
func (s *CredentialStore) Lookup(accessKeyID string) (Credential, bool) {
	c, ok := s.byAccessKey[accessKeyID]
	return c, ok
}

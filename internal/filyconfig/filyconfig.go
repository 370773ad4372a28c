// Package filyconfig loads and validates server configuration from
// environment variables and CLI flags, per spec.md §6. Grounded on
// rclone's own cmd-level eager validation + fatal-exit pattern (flags
// parsed once at startup, bad values reported immediately rather than
// discovered lazily); flags are spf13/pflag, bound through
// spf13/cobra's Command in cmd/filyd, both direct rclone dependencies.
package filyconfig

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fritsstegmann/fily/internal/sigv4"
)

// Config is the fully validated, immutable configuration built once at
// startup and threaded read-only into the handler chain (spec.md §9).
type Config struct {
	Location string
	Port     int
	Address  string
	LogLevel string

	Credentials []sigv4.Credential

	EncryptionEnabled bool
	EncryptionKey     []byte // nil unless EncryptionEnabled

	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 5 * 1 << 30 // 5 GiB, per spec.md §4.4/§5.

// jsonCredential is the wire shape of one entry in FILY_AWS_CREDENTIALS.
type jsonCredential struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
}

// Load builds a Config from the process environment, applying the
// defaults and validation rules of spec.md §6. getenv is injected so
// tests do not mutate process-global environment state.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Location:     valueOr(getenv("FILY_LOCATION"), "./data"),
		Address:      valueOr(getenv("FILY_ADDRESS"), "0.0.0.0"),
		LogLevel:     valueOr(getenv("FILY_LOG_LEVEL"), "info"),
		MaxBodyBytes: defaultMaxBodyBytes,
	}

	port := 8333
	if raw := getenv("FILY_PORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("filyconfig: FILY_PORT must be an integer: %w", err)
		}
		port = p
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("filyconfig: FILY_PORT must be in 1..=65535, got %d", port)
	}
	cfg.Port = port

	creds, err := loadCredentials(getenv)
	if err != nil {
		return nil, err
	}
	cfg.Credentials = creds

	enabled := parseBool(getenv("FILY_ENCRYPTION_ENABLED"))
	cfg.EncryptionEnabled = enabled
	if enabled {
		raw := getenv("FILY_ENCRYPTION_MASTER_KEY")
		if raw == "" {
			return nil, fmt.Errorf("filyconfig: FILY_ENCRYPTION_MASTER_KEY is required when FILY_ENCRYPTION_ENABLED is set")
		}
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("filyconfig: FILY_ENCRYPTION_MASTER_KEY must be base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("filyconfig: FILY_ENCRYPTION_MASTER_KEY must decode to exactly 32 bytes, got %d", len(key))
		}
		cfg.EncryptionKey = key
	}

	return cfg, nil
}

// loadCredentials implements the JSON > indexed > standard-env precedence
// chain of spec.md §6, validating each credential's field lengths.
func loadCredentials(getenv func(string) string) ([]sigv4.Credential, error) {
	if raw := getenv("FILY_AWS_CREDENTIALS"); raw != "" {
		var entries []jsonCredential
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("filyconfig: FILY_AWS_CREDENTIALS is not valid JSON: %w", err)
		}
		creds := make([]sigv4.Credential, 0, len(entries))
		for _, e := range entries {
			c := sigv4.Credential{AccessKeyID: e.AccessKeyID, SecretAccessKey: e.SecretAccessKey, Region: valueOr(e.Region, "us-east-1")}
			if err := validateCredential(c); err != nil {
				return nil, err
			}
			creds = append(creds, c)
		}
		return creds, nil
	}

	var indexed []sigv4.Credential
	for i := 1; ; i++ {
		ak := getenv(fmt.Sprintf("FILY_AWS_ACCESS_KEY_ID_%d", i))
		if ak == "" {
			break
		}
		sk := getenv(fmt.Sprintf("FILY_AWS_SECRET_ACCESS_KEY_%d", i))
		region := valueOr(getenv(fmt.Sprintf("FILY_AWS_REGION_%d", i)), "us-east-1")
		c := sigv4.Credential{AccessKeyID: ak, SecretAccessKey: sk, Region: region}
		if err := validateCredential(c); err != nil {
			return nil, err
		}
		indexed = append(indexed, c)
	}
	if len(indexed) > 0 {
		return indexed, nil
	}

	ak := getenv("AWS_ACCESS_KEY_ID")
	sk := getenv("AWS_SECRET_ACCESS_KEY")
	if ak == "" && sk == "" {
		return nil, nil
	}
	region := valueOr(getenv("AWS_REGION"), "us-east-1")
	c := sigv4.Credential{AccessKeyID: ak, SecretAccessKey: sk, Region: region}
	if err := validateCredential(c); err != nil {
		return nil, err
	}
	return []sigv4.Credential{c}, nil
}

// validateCredential enforces spec.md §6's exact field lengths: AWS
// access key ids are always 20 characters, secret access keys 40.
func validateCredential(c sigv4.Credential) error {
	if len(c.AccessKeyID) != 20 {
		return fmt.Errorf("filyconfig: access key id must be 20 characters, got %d", len(c.AccessKeyID))
	}
	if len(c.SecretAccessKey) != 40 {
		return fmt.Errorf("filyconfig: secret access key must be 40 characters, got %d", len(c.SecretAccessKey))
	}
	return nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return b
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Getenv adapts os.Getenv to filyconfig.Load's injected-function shape.
func Getenv(key string) string { return os.Getenv(key) }

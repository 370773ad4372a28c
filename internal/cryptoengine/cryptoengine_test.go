package cryptoengine

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestRoundTrip(t *testing.T) {
	e, err := New(randomKey(t))
	require.NoError(t, err)

	plaintext := []byte("hello, encrypted world")
	ad := AssociatedData("b1", "k1")

	blob, err := e.Seal(plaintext, ad)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, blob)

	got, err := e.Open(blob, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestAssociatedDataBindsLocation(t *testing.T) {
	e, err := New(randomKey(t))
	require.NoError(t, err)

	blob, err := e.Seal([]byte("secret"), AssociatedData("b1", "k1"))
	require.NoError(t, err)

	_, err = e.Open(blob, AssociatedData("b2", "k1"))
	assert.Error(t, err)

	_, err = e.Open(blob, AssociatedData("b1", "k2"))
	assert.Error(t, err)
}

func TestOpenRejectsTruncatedInput(t *testing.T) {
	e, err := New(randomKey(t))
	require.NoError(t, err)
	_, err = e.Open([]byte("too short"), AssociatedData("b", "k"))
	assert.Error(t, err)
}

func TestNewRejectsWrongKeySize(t *testing.T) {
	_, err := New(make([]byte, 16))
	assert.Error(t, err)
}

func TestSealProducesFreshNonces(t *testing.T) {
	e, err := New(randomKey(t))
	require.NoError(t, err)
	a, err := e.Seal([]byte("same plaintext"), AssociatedData("b", "k"))
	require.NoError(t, err)
	b, err := e.Seal([]byte("same plaintext"), AssociatedData("b", "k"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonces must differ between calls")
}

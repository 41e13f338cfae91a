package passhash

import "crypto/subtle"

// PlaintextName is the configuration name of the plaintext scheme.
const PlaintextName = "plaintext"

// Plaintext stores the password itself. It only exists so legacy records can
// be verified once and migrated; configure it as deprecated.
type Plaintext struct{}

func (Plaintext) Name() string { return PlaintextName }

// Identify accepts every string.
func (Plaintext) Identify(string) bool { return true }

func (Plaintext) Hash(password string) (string, error) { return password, nil }

func (Plaintext) Verify(password, hash string) (bool, error) {
	return subtle.ConstantTimeCompare([]byte(password), []byte(hash)) == 1, nil
}

func (Plaintext) NeedsUpdate(string) bool { return false }

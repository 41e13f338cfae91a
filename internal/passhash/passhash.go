// Package passhash verifies and produces password hashes across an ordered
// chain of schemes. The scheme that produced a stored hash is detected from
// the hash's own encoding, so records written by older schemes keep working
// while successful logins migrate them to the default scheme.
package passhash

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownHash is returned when no configured scheme recognises a hash.
	ErrUnknownHash = errors.New("hash not recognised by any configured scheme")
	// ErrMalformedHash is returned when a hash carries a scheme's prefix but cannot be decoded.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrInvalidConfig is returned for unusable scheme chains or parameters.
	ErrInvalidConfig = errors.New("invalid password hash configuration")
)

// Scheme is one hashing algorithm in the chain.
type Scheme interface {
	// Name is the configuration name, e.g. "pbkdf2_sha512".
	Name() string
	// Identify reports whether hash was produced by this scheme.
	Identify(hash string) bool
	// Hash produces a new hash of password with the scheme's default parameters.
	Hash(password string) (string, error)
	// Verify compares password against hash. A mismatch is (false, nil).
	Verify(password, hash string) (bool, error)
	// NeedsUpdate reports whether hash was produced with parameters outside
	// the accepted range.
	NeedsUpdate(hash string) bool
}

// Config describes a scheme chain by name.
type Config struct {
	// Schemes in order of preference. The first one hashes new passwords.
	Schemes []string
	// Deprecated schemes still verify but always trigger a rehash.
	Deprecated []string
	PBKDF2     PBKDF2Config
	BcryptCost int
}

// Context is an immutable scheme chain. It is safe for concurrent use.
type Context struct {
	schemes    []Scheme
	deprecated map[string]bool
}

// New builds a Context from cfg.
func New(cfg Config) (*Context, error) {
	schemes := make([]Scheme, 0, len(cfg.Schemes))
	for _, name := range cfg.Schemes {
		s, err := newScheme(name, cfg)
		if err != nil {
			return nil, err
		}
		schemes = append(schemes, s)
	}
	return NewContext(schemes, cfg.Deprecated...)
}

func newScheme(name string, cfg Config) (Scheme, error) {
	switch name {
	case PBKDF2SHA512Name:
		return NewPBKDF2SHA512(cfg.PBKDF2)
	case BcryptName:
		return NewBcrypt(cfg.BcryptCost)
	case PlaintextName:
		return Plaintext{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown scheme %q", ErrInvalidConfig, name)
	}
}

// NewContext builds a Context from already constructed schemes.
func NewContext(schemes []Scheme, deprecated ...string) (*Context, error) {
	if len(schemes) == 0 {
		return nil, fmt.Errorf("%w: no schemes configured", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(schemes))
	for i, s := range schemes {
		if seen[s.Name()] {
			return nil, fmt.Errorf("%w: scheme %q listed twice", ErrInvalidConfig, s.Name())
		}
		seen[s.Name()] = true

		// plaintext claims every string, anything after it is unreachable
		if s.Name() == PlaintextName && i != len(schemes)-1 {
			return nil, fmt.Errorf("%w: %s must be the last scheme", ErrInvalidConfig, PlaintextName)
		}
	}

	dep := make(map[string]bool, len(deprecated))
	for _, name := range deprecated {
		if !seen[name] {
			return nil, fmt.Errorf("%w: deprecated scheme %q is not in the chain", ErrInvalidConfig, name)
		}
		dep[name] = true
	}
	if dep[schemes[0].Name()] {
		return nil, fmt.Errorf("%w: default scheme %q cannot be deprecated", ErrInvalidConfig, schemes[0].Name())
	}

	return &Context{schemes: schemes, deprecated: dep}, nil
}

// Default returns the scheme used for new hashes.
func (c *Context) Default() Scheme {
	return c.schemes[0]
}

// Identify returns the first scheme that recognises hash.
func (c *Context) Identify(hash string) (Scheme, error) {
	for _, s := range c.schemes {
		if s.Identify(hash) {
			return s, nil
		}
	}
	return nil, ErrUnknownHash
}

// IsDeprecated reports whether the named scheme is deprecated.
func (c *Context) IsDeprecated(name string) bool {
	return c.deprecated[name]
}

// Hash hashes password with the default scheme.
func (c *Context) Hash(password string) (string, error) {
	return c.Default().Hash(password)
}

// Verify checks password against hash using the scheme that produced it.
func (c *Context) Verify(password, hash string) (bool, error) {
	s, err := c.Identify(hash)
	if err != nil {
		return false, err
	}
	return s.Verify(password, hash)
}

// NeedsUpdate reports whether hash should be replaced: its scheme is
// deprecated, or its parameters are outside the scheme's accepted range.
// Unrecognised hashes never need an update; they fail verification instead.
func (c *Context) NeedsUpdate(hash string) bool {
	s, err := c.Identify(hash)
	if err != nil {
		return false
	}
	return c.deprecated[s.Name()] || s.NeedsUpdate(hash)
}

// VerifyAndUpdate checks password against hash and, on a match that needs an
// update, returns a replacement made by the default scheme. newHash is empty
// when no update is due. A failure to produce the replacement is reported
// with ok still true.
func (c *Context) VerifyAndUpdate(password, hash string) (ok bool, newHash string, err error) {
	ok, err = c.Verify(password, hash)
	if err != nil || !ok {
		return false, "", err
	}
	if !c.NeedsUpdate(hash) {
		return true, "", nil
	}
	newHash, err = c.Hash(password)
	if err != nil {
		return true, "", fmt.Errorf("rehash: %w", err)
	}
	return true, newHash, nil
}

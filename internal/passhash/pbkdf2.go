package passhash

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2SHA512Name is the configuration name of the PBKDF2-HMAC-SHA512 scheme.
	PBKDF2SHA512Name = "pbkdf2_sha512"

	pbkdf2Ident       = "$pbkdf2-sha512$"
	pbkdf2KeyLen      = sha512.Size
	pbkdf2DefaultSalt = 16

	// Stored hashes above this are refused rather than computed.
	pbkdf2RoundsCeiling = 1 << 24
)

// ab64 is standard base64 with '.' in place of '+' and no padding.
var ab64 = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789./").
	WithPadding(base64.NoPadding)

// PBKDF2Config bounds the accepted rounds of stored hashes and sets the
// rounds used for new ones.
type PBKDF2Config struct {
	MinRounds     int
	MaxRounds     int
	DefaultRounds int
	SaltSize      int
}

// PBKDF2SHA512 hashes as $pbkdf2-sha512$<rounds>$<salt>$<checksum>.
type PBKDF2SHA512 struct {
	cfg  PBKDF2Config
	rand io.Reader
}

// NewPBKDF2SHA512 validates cfg. A zero SaltSize means 16 bytes.
func NewPBKDF2SHA512(cfg PBKDF2Config) (*PBKDF2SHA512, error) {
	if cfg.SaltSize == 0 {
		cfg.SaltSize = pbkdf2DefaultSalt
	}
	switch {
	case cfg.MinRounds < 1:
		return nil, fmt.Errorf("%w: pbkdf2 min rounds must be >= 1", ErrInvalidConfig)
	case cfg.MaxRounds < cfg.MinRounds:
		return nil, fmt.Errorf("%w: pbkdf2 max rounds below min rounds", ErrInvalidConfig)
	case cfg.DefaultRounds < cfg.MinRounds || cfg.DefaultRounds > cfg.MaxRounds:
		return nil, fmt.Errorf("%w: pbkdf2 default rounds outside [%d, %d]", ErrInvalidConfig, cfg.MinRounds, cfg.MaxRounds)
	case cfg.MaxRounds > pbkdf2RoundsCeiling:
		return nil, fmt.Errorf("%w: pbkdf2 max rounds above %d", ErrInvalidConfig, pbkdf2RoundsCeiling)
	case cfg.SaltSize < 8:
		return nil, fmt.Errorf("%w: pbkdf2 salt must be at least 8 bytes", ErrInvalidConfig)
	}
	return &PBKDF2SHA512{cfg: cfg, rand: rand.Reader}, nil
}

func (p *PBKDF2SHA512) Name() string { return PBKDF2SHA512Name }

func (p *PBKDF2SHA512) Identify(hash string) bool {
	return strings.HasPrefix(hash, pbkdf2Ident)
}

func (p *PBKDF2SHA512) Hash(password string) (string, error) {
	salt := make([]byte, p.cfg.SaltSize)
	if _, err := io.ReadFull(p.rand, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return encodePBKDF2(p.cfg.DefaultRounds, salt, derive(password, salt, p.cfg.DefaultRounds)), nil
}

func (p *PBKDF2SHA512) Verify(password, hash string) (bool, error) {
	rounds, salt, sum, err := parsePBKDF2(hash)
	if err != nil {
		return false, err
	}
	if rounds > pbkdf2RoundsCeiling {
		return false, fmt.Errorf("%w: %d rounds exceeds ceiling", ErrMalformedHash, rounds)
	}
	return subtle.ConstantTimeCompare(derive(password, salt, rounds), sum) == 1, nil
}

func (p *PBKDF2SHA512) NeedsUpdate(hash string) bool {
	rounds, _, _, err := parsePBKDF2(hash)
	if err != nil {
		return false
	}
	return rounds < p.cfg.MinRounds || rounds > p.cfg.MaxRounds
}

func derive(password string, salt []byte, rounds int) []byte {
	return pbkdf2.Key([]byte(password), salt, rounds, pbkdf2KeyLen, sha512.New)
}

func encodePBKDF2(rounds int, salt, sum []byte) string {
	return pbkdf2Ident + strconv.Itoa(rounds) + "$" + ab64.EncodeToString(salt) + "$" + ab64.EncodeToString(sum)
}

func parsePBKDF2(hash string) (int, []byte, []byte, error) {
	if !strings.HasPrefix(hash, pbkdf2Ident) {
		return 0, nil, nil, fmt.Errorf("%w: missing %s prefix", ErrMalformedHash, pbkdf2Ident)
	}

	parts := strings.Split(strings.TrimPrefix(hash, pbkdf2Ident), "$")
	if len(parts) != 3 {
		return 0, nil, nil, fmt.Errorf("%w: expected rounds, salt and checksum", ErrMalformedHash)
	}

	rounds, err := parseRounds(parts[0])
	if err != nil {
		return 0, nil, nil, err
	}

	salt, err := ab64.DecodeString(parts[1])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}

	sum, err := ab64.DecodeString(parts[2])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: checksum: %v", ErrMalformedHash, err)
	}
	if len(sum) != pbkdf2KeyLen {
		return 0, nil, nil, fmt.Errorf("%w: checksum is %d bytes", ErrMalformedHash, len(sum))
	}

	return rounds, salt, sum, nil
}

func parseRounds(s string) (int, error) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, fmt.Errorf("%w: bad rounds %q", ErrMalformedHash, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: bad rounds %q", ErrMalformedHash, s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: bad rounds %q", ErrMalformedHash, s)
	}
	return n, nil
}

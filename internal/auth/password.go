package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/yedhukrishnan/performance-backend/internal/config"
	"golang.org/x/crypto/argon2"
)

var ErrInvalidHash = errors.New("invalid password hash")

// argon2Params are the cost settings embedded in every encoded hash.
type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

type PasswordHasher struct {
	params     argon2Params
	saltLength uint32
	keyLength  uint32
}

var defaultParams = argon2Params{memory: 64 * 1024, iterations: 3, parallelism: 2}

// NewPasswordHasher builds a hasher from cfg. Zero fields take the defaults.
func NewPasswordHasher(cfg config.PasswordConfig) *PasswordHasher {
	ph := &PasswordHasher{
		params: argon2Params{
			memory:      cfg.MemoryKiB,
			iterations:  cfg.Iterations,
			parallelism: cfg.Parallelism,
		},
		saltLength: cfg.SaltLength,
		keyLength:  cfg.KeyLength,
	}
	if ph.params.memory == 0 {
		ph.params.memory = defaultParams.memory
	}
	if ph.params.iterations == 0 {
		ph.params.iterations = defaultParams.iterations
	}
	if ph.params.parallelism == 0 {
		ph.params.parallelism = defaultParams.parallelism
	}
	if ph.saltLength == 0 {
		ph.saltLength = 16
	}
	if ph.keyLength == 0 {
		ph.keyLength = 32
	}
	return ph
}

// HashPassword returns a PHC-style argon2id string:
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
func (ph *PasswordHasher) HashPassword(password string) (string, error) {
	salt := make([]byte, ph.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	p := ph.params
	key := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, ph.keyLength)
	return encodeHash(p, salt, key), nil
}

// VerifyPassword checks password against an encoded hash using the
// parameters stored in the hash, not the hasher's current ones.
func (ph *PasswordHasher) VerifyPassword(password, encoded string) (bool, error) {
	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

// NeedsRehash reports whether encoded was made with other cost parameters.
func (ph *PasswordHasher) NeedsRehash(encoded string) bool {
	p, _, key, err := decodeHash(encoded)
	return err != nil || p != ph.params || uint32(len(key)) != ph.keyLength
}

func encodeHash(p argon2Params, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.iterations, p.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

func decodeHash(encoded string) (argon2Params, []byte, []byte, error) {
	var p argon2Params

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, fields[2])
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: key", ErrInvalidHash)
	}
	return p, salt, key, nil
}

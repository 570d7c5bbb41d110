package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16

	MinLength = 12
)

var ErrTooShort = fmt.Errorf("password must be at least %d characters", MinLength)

var errMalformedHash = errors.New("malformed argon2id hash")

// Hash returns the PHC-style Argon2id string stored in operator policy files.
func Hash(password string) (string, error) {
	if len(strings.TrimSpace(password)) < MinLength {
		return "", ErrTooShort
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	saltB64 := base64.RawStdEncoding.EncodeToString(salt)
	hashB64 := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s", argonMemory, argonTime, argonThreads, saltB64, hashB64), nil
}

type params struct {
	memory   uint32
	timeCost uint32
	threads  uint8
	salt     []byte
	hash     []byte
}

// Verify checks whether a password matches the encoded Argon2id hash.
func Verify(password, encoded string) bool {
	p, err := parse(encoded)
	if err != nil {
		return false
	}
	check := argon2.IDKey([]byte(password), p.salt, p.timeCost, p.memory, p.threads, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(p.hash, check) == 1
}

// Check reports whether encoded is a hash Verify can read.
func Check(encoded string) error {
	_, err := parse(encoded)
	return err
}

func parse(encoded string) (params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return params{}, errMalformedHash
	}

	var memory uint32
	var timeCost uint32
	var threads uint8
	{
		fields := strings.Split(parts[3], ",")
		if len(fields) != 3 {
			return params{}, errMalformedHash
		}

		m, ok := strings.CutPrefix(fields[0], "m=")
		if !ok {
			return params{}, errMalformedHash
		}
		t, ok := strings.CutPrefix(fields[1], "t=")
		if !ok {
			return params{}, errMalformedHash
		}
		p, ok := strings.CutPrefix(fields[2], "p=")
		if !ok {
			return params{}, errMalformedHash
		}

		m64, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			return params{}, errMalformedHash
		}
		t64, err := strconv.ParseUint(t, 10, 32)
		if err != nil {
			return params{}, errMalformedHash
		}
		p64, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return params{}, errMalformedHash
		}

		memory = uint32(m64)
		timeCost = uint32(t64)
		threads = uint8(p64)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params{}, errMalformedHash
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params{}, errMalformedHash
	}
	if timeCost == 0 || threads == 0 || len(salt) == 0 || len(hash) == 0 {
		return params{}, errMalformedHash
	}
	return params{memory: memory, timeCost: timeCost, threads: threads, salt: salt, hash: hash}, nil
}

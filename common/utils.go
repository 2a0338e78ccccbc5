package common

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/mr-tron/base58"
)

const (
	SignatureSize = 64
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// ParsePublicKey decodes a base58 address and checks its length.
// solcommon.PublicKeyFromString silently returns the zero key on bad input,
// so anything coming from users goes through here.
func ParsePublicKey(s string) (solcommon.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return solcommon.PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	}
	b, err := base58.Decode(s)
	if err != nil {
		return solcommon.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(b) != solcommon.PublicKeyLength {
		return solcommon.PublicKey{}, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(b))
	}
	return solcommon.PublicKeyFromBytes(b), nil
}

// ValidateSignature checks that s is a base58 encoded ed25519 signature.
func ValidateSignature(s string) error {
	b, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(b) != SignatureSize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidSignature, len(b))
	}
	return nil
}

func IsZeroPublicKey(pk solcommon.PublicKey) bool {
	return pk == solcommon.PublicKey{}
}

// RandBytes32 generates [32]byte with random values
func RandBytes32() [32]byte {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return [32]byte{}
	}
	return b
}

func RandBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil
	}
	return b
}

// RandPublicKey returns a random (off-curve or not) public key. Test helper.
func RandPublicKey() solcommon.PublicKey {
	b := RandBytes32()
	return solcommon.PublicKeyFromBytes(b[:])
}

// Shorten keeps n characters on both sides of s and replaces the rest with "..."
func Shorten(s string, n int) string {
	if len(s) <= n*2 {
		return s
	}
	return s[:n] + "..." + s[len(s)-n:]
}

package registration

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"

	"github.com/google/uuid"
)

// UUIDTokenGenerator is the default TokenGenerator: a random UUIDv4 string,
// which carries 122 bits of entropy.
func UUIDTokenGenerator() string {
	return uuid.NewString()
}

// TokensEqual compares two opaque tokens in constant time.
func TokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

const (
	passwordChars   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	passwordSymbols = "~!@#$%^&*"
)

// RandomPassword generates a temporary password: 6-7 mixed alphanumerics,
// one symbol, then 6-7 more alphanumerics, 13 to 15 characters in total.
func RandomPassword() string {
	out := make([]byte, 0, 15)
	for _, n := range []int{6 + randInt(2), 1, 6 + randInt(2)} {
		chars := passwordChars
		if n == 1 {
			chars = passwordSymbols
		}
		for i := 0; i < n; i++ {
			out = append(out, chars[randInt(len(chars))])
		}
	}
	return string(out)
}

func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform source is broken;
		// there is no useful recovery for password generation.
		panic(err)
	}
	return int(v.Int64())
}

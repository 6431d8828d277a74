/* pkg/crypto/password.go */

package crypto

import (
	"crypto/rand"
	"math/big"

	cerr "github.com/cockroachdb/errors"
)

// PasswordAlphabet is the full set of characters a generated secret may
// contain: digits, letters, and punctuation safe inside quoted SQL literals.
const PasswordAlphabet = "1234567890abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ~@#%$^&*()-_=+]}[{|;:.>,</?"

// MasterKeyLength is the length of auto-generated keyring master keys.
const MasterKeyLength = 32

// GeneratePassword draws length characters uniformly from PasswordAlphabet.
// Sampling uses a uniform integer distribution over the alphabet size, never
// modulo reduction of a wider random value.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", cerr.Newf("invalid password length %d", length)
	}
	pwd := make([]byte, length)
	for i := range pwd {
		c, err := randomChar(PasswordAlphabet)
		if err != nil {
			return "", err
		}
		pwd[i] = c
	}
	return string(pwd), nil
}

// GenerateMasterKey produces a random keyring master key.
func GenerateMasterKey() (string, error) {
	return GeneratePassword(MasterKeyLength)
}

func randomChar(charset string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, cerr.Wrap(err, "reading from system entropy source")
	}
	return charset[n.Int64()], nil
}

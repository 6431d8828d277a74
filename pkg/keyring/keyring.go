// Package keyring is an encrypted-at-rest secret store for router database
// credentials. Secrets live in a single file, sealed with AES-256-GCM under a
// key derived from the operator-supplied master key.
package keyring

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/crypto"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
	"gopkg.in/yaml.v3"
)

var fileMagic = []byte("CHARONKR1")

const (
	saltLength       = 16
	derivedKeyLength = 32
	pbkdf2Iterations = 100_000
)

// Keyring holds decrypted entries in memory until Flush seals them back to
// disk. The file is created owner-only; it may hold live database passwords.
type Keyring struct {
	path      string
	masterKey string
	salt      []byte
	entries   map[string]map[string]string
}

// Init opens or creates the keyring at path using the given master key.
// A missing file is only acceptable when createIfMissing is set.
func Init(rc *charon_io.RuntimeContext, path, masterKey string, createIfMissing bool) (*Keyring, error) {
	k := &Keyring{
		path:      path,
		masterKey: masterKey,
		entries:   make(map[string]map[string]string),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if !createIfMissing {
			return nil, cerr.Wrapf(err, "keyring file %s does not exist", path)
		}
		k.salt = make([]byte, saltLength)
		if _, err := io.ReadFull(rand.Reader, k.salt); err != nil {
			return nil, cerr.Wrap(err, "generating keyring salt")
		}
		otelzap.Ctx(rc.Ctx).Debug("Creating new keyring", zap.String("path", path))
		return k, nil
	}
	if err != nil {
		return nil, cerr.Wrapf(err, "could not read keyring file %s", path)
	}
	if err := k.load(raw); err != nil {
		return nil, err
	}
	otelzap.Ctx(rc.Ctx).Debug("Loaded keyring",
		zap.String("path", path), zap.Int("accounts", len(k.entries)))
	return k, nil
}

// InitWithMasterKeyFile opens or creates the keyring, reading the master key
// from keyFilePath. When the key file does not exist and createIfMissing is
// set, a random key is generated and written there owner-only, so the router
// can later start without interaction.
func InitWithMasterKeyFile(rc *charon_io.RuntimeContext, path, keyFilePath string, createIfMissing bool) (*Keyring, error) {
	raw, err := os.ReadFile(keyFilePath)
	var masterKey string
	switch {
	case err == nil:
		masterKey = strings.TrimRight(string(raw), "\r\n")
		if masterKey == "" {
			return nil, cerr.Newf("master key file %s is empty", keyFilePath)
		}
	case os.IsNotExist(err) && createIfMissing:
		masterKey, err = crypto.GenerateMasterKey()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(keyFilePath, []byte(masterKey+"\n"), 0o600); err != nil {
			return nil, cerr.Wrapf(err, "could not write master key file %s", keyFilePath)
		}
		otelzap.Ctx(rc.Ctx).Info("Generated keyring master key",
			zap.String("path", keyFilePath))
	default:
		return nil, cerr.Wrapf(err, "could not read master key file %s", keyFilePath)
	}
	return Init(rc, path, masterKey, createIfMissing)
}

// Store records a secret for (account, attribute). It only becomes durable on
// Flush.
func (k *Keyring) Store(account, attribute, secret string) {
	attrs, ok := k.entries[account]
	if !ok {
		attrs = make(map[string]string)
		k.entries[account] = attrs
	}
	attrs[attribute] = secret
}

// Fetch returns the stored secret for (account, attribute).
func (k *Keyring) Fetch(account, attribute string) (string, bool) {
	attrs, ok := k.entries[account]
	if !ok {
		return "", false
	}
	secret, ok := attrs[attribute]
	return secret, ok
}

// Flush seals the in-memory entries and writes them to the keyring file with
// owner-only permissions.
func (k *Keyring) Flush() error {
	payload, err := yaml.Marshal(k.entries)
	if err != nil {
		return cerr.Wrap(err, "serializing keyring entries")
	}

	block, err := aes.NewCipher(k.deriveKey())
	if err != nil {
		return cerr.Wrap(err, "initializing keyring cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return cerr.Wrap(err, "initializing keyring cipher")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return cerr.Wrap(err, "generating keyring nonce")
	}
	sealed := gcm.Seal(nonce, nonce, payload, fileMagic)

	var buf bytes.Buffer
	buf.Write(fileMagic)
	buf.Write(k.salt)
	buf.Write(sealed)
	if err := os.WriteFile(k.path, buf.Bytes(), 0o600); err != nil {
		return cerr.Wrapf(err, "could not write keyring file %s", k.path)
	}
	return nil
}

func (k *Keyring) load(raw []byte) error {
	if len(raw) < len(fileMagic)+saltLength || !bytes.HasPrefix(raw, fileMagic) {
		return cerr.Newf("%s is not a charon keyring file", k.path)
	}
	raw = raw[len(fileMagic):]
	k.salt = append([]byte(nil), raw[:saltLength]...)
	sealed := raw[saltLength:]

	block, err := aes.NewCipher(k.deriveKey())
	if err != nil {
		return cerr.Wrap(err, "initializing keyring cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return cerr.Wrap(err, "initializing keyring cipher")
	}
	if len(sealed) < gcm.NonceSize() {
		return cerr.Newf("keyring file %s is truncated", k.path)
	}
	payload, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], fileMagic)
	if err != nil {
		return cerr.Wrapf(err, "could not decrypt keyring file %s; check the encryption key", k.path)
	}
	if err := yaml.Unmarshal(payload, &k.entries); err != nil {
		return cerr.Wrapf(err, "keyring file %s is corrupted", k.path)
	}
	if k.entries == nil {
		k.entries = make(map[string]map[string]string)
	}
	return nil
}

func (k *Keyring) deriveKey() []byte {
	return pbkdf2.Key([]byte(k.masterKey), k.salt, pbkdf2Iterations, derivedKeyLength, sha256.New)
}

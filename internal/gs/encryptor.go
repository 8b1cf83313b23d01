package gs

import "io"

// Encryptor handles encryption of sync archives before they leave the host.
// Encryption uses the recipient key only, so routine syncs need no user
// intervention. Decryption requires a passphrase to unlock the identity,
// producing a DecryptionContext for the session.
//
// Account credentials stored in the database are deliberately not covered by
// this; only off-device archive copies are.
type Encryptor interface {
	// Setup performs one-time key generation: a fresh key pair with the
	// recipient half stored in plaintext and the identity half encrypted
	// with the provided passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	// Uses the recipient key only.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the identity using the passphrase and returns a
	// DecryptionContext for the duration of the session.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether key material exists at the configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity in memory for the duration of
// a fetch session. The unlocked key is never written to disk.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}

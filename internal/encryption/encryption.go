// Package encryption protects backup archives at rest. Encryption uses
// a public key only; decryption requires the passphrase that protects
// the private key.
package encryption

import "io"

// Encryptor handles encryption and decryption of backup payloads.
type Encryptor interface {
	// Setup performs one-time key generation. Generates a key pair,
	// stores the public key in plaintext, and encrypts the private key
	// with the provided passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	// Uses the public key only; no passphrase required.
	Encrypt(r io.Reader, w io.Writer) error

	// Decrypt unlocks the private key with the passphrase, then reads
	// ciphertext from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer, passphrase string) error

	// IsConfigured returns true if the key material exists.
	IsConfigured() bool
}

// NoneEncryptor passes data through unchanged. Used when backup
// encryption is disabled.
type NoneEncryptor struct{}

var _ Encryptor = NoneEncryptor{}

func (NoneEncryptor) Setup(string) error { return nil }

func (NoneEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

func (NoneEncryptor) Decrypt(r io.Reader, w io.Writer, _ string) error {
	_, err := io.Copy(w, r)
	return err
}

func (NoneEncryptor) IsConfigured() bool { return true }

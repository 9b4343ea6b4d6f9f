package encryption

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"bmsync/internal/config"
)

func newTestEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "bmsync.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "bmsync.key"),
	})
}

func TestAgeEncryptor_SetupAndRoundTrip(t *testing.T) {
	e := newTestEncryptor(t)

	if e.IsConfigured() {
		t.Error("IsConfigured() = true before Setup")
	}
	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup")
	}

	plaintext := []byte("bookmark archive payload")
	var ciphertext bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(ciphertext.Bytes(), plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	var decrypted bytes.Buffer
	if err := e.Decrypt(bytes.NewReader(ciphertext.Bytes()), &decrypted, "correct horse"); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestAgeEncryptor_WrongPassphrase(t *testing.T) {
	e := newTestEncryptor(t)
	if err := e.Setup("right"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	var ciphertext bytes.Buffer
	if err := e.Encrypt(strings.NewReader("data"), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	var out bytes.Buffer
	if err := e.Decrypt(bytes.NewReader(ciphertext.Bytes()), &out, "wrong"); err == nil {
		t.Error("Decrypt() with wrong passphrase succeeded")
	}
}

func TestAgeEncryptor_EncryptWithoutSetup(t *testing.T) {
	e := newTestEncryptor(t)

	var out bytes.Buffer
	if err := e.Encrypt(strings.NewReader("data"), &out); err == nil {
		t.Error("Encrypt() without Setup succeeded")
	}
}

func TestNoneEncryptor(t *testing.T) {
	e := NoneEncryptor{}

	var out bytes.Buffer
	if err := e.Encrypt(strings.NewReader("plain"), &out); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if out.String() != "plain" {
		t.Errorf("Encrypt() = %q, want passthrough", out.String())
	}

	out.Reset()
	if err := e.Decrypt(strings.NewReader("plain"), &out, ""); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if out.String() != "plain" {
		t.Errorf("Decrypt() = %q, want passthrough", out.String())
	}
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		wantErr bool
	}{
		{"default is age", "", false},
		{"age", "age", false},
		{"none", "none", false},
		{"unknown", "rot13", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Errorf("FromConfig(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
			}
		})
	}
}

// Package backup creates master backup archives of every detected
// native store and restores individual stores from them. Archives are
// plain directory trees with a manifest; payloads are optionally
// age-encrypted.
package backup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"bmsync/internal/encryption"
	"bmsync/internal/safewrite"
	"bmsync/internal/store"
)

// Entry describes one archived store file.
type Entry struct {
	Store      store.ID `json:"store"`
	SourcePath string   `json:"source_path"`
	File       string   `json:"file"`
	Size       int64    `json:"size"`
	SHA256     string   `json:"sha256"`
	Encrypted  bool     `json:"encrypted"`
}

// Manifest records the contents of one archive directory.
type Manifest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

func (m *Manifest) entry(id store.ID) (*Entry, error) {
	for i := range m.Entries {
		if m.Entries[i].Store == id {
			return &m.Entries[i], nil
		}
	}
	return nil, fmt.Errorf("store %s not present in archive", id)
}

// Clock abstracts time retrieval so archive names are deterministic in
// tests.
type Clock interface {
	Now() time.Time
}

// Archiver creates and restores master backups.
type Archiver struct {
	outputDir string
	enc       encryption.Encryptor
	logger    safewrite.Logger
	clock     Clock
}

func NewArchiver(outputDir string, enc encryption.Encryptor, logger safewrite.Logger, clock Clock) *Archiver {
	if enc == nil {
		enc = encryption.NoneEncryptor{}
	}
	if logger == nil {
		logger = safewrite.NopLogger{}
	}
	return &Archiver{outputDir: outputDir, enc: enc, logger: logger, clock: clock}
}

// Create archives every detected store into a timestamped directory
// under outputDir and writes its manifest.json. Undetected stores are
// skipped; a copy failure aborts the archive. Returns the manifest and
// its path.
func (a *Archiver) Create(adapters []store.Adapter, encrypt bool) (*Manifest, string, error) {
	dir := filepath.Join(a.outputDir, "bookmarks-"+a.clock.Now().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, "", fmt.Errorf("creating archive directory: %w", err)
	}

	manifest := &Manifest{ID: uuid.New().String(), CreatedAt: a.clock.Now()}
	for _, adapter := range adapters {
		src, err := adapter.DetectPath()
		if err != nil {
			a.logger.Debug("store not detected, not archived", "store", adapter.Store())
			continue
		}

		name := string(adapter.Store()) + filepath.Ext(src)
		if encrypt {
			name += ".age"
		}
		entry, err := a.archiveFile(src, filepath.Join(dir, name), encrypt)
		if err != nil {
			return nil, "", fmt.Errorf("archiving %s: %w", adapter.Store(), err)
		}
		entry.Store = adapter.Store()
		entry.SourcePath = src
		entry.File = name
		manifest.Entries = append(manifest.Entries, *entry)
		a.logger.Info("archived store", "store", adapter.Store(), "file", name, "size", entry.Size)
	}

	if len(manifest.Entries) == 0 {
		os.RemoveAll(dir)
		return nil, "", fmt.Errorf("no stores detected, nothing to archive")
	}

	manifestPath := filepath.Join(dir, "manifest.json")
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return nil, "", fmt.Errorf("writing manifest: %w", err)
	}
	return manifest, manifestPath, nil
}

func (a *Archiver) archiveFile(src, dst string, encrypt bool) (*Entry, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	hash := sha256.New()
	sink := io.MultiWriter(out, hash)

	if encrypt {
		if err := a.enc.Encrypt(in, sink); err != nil {
			return nil, err
		}
	} else {
		if _, err := io.Copy(sink, in); err != nil {
			return nil, err
		}
	}
	if err := out.Sync(); err != nil {
		return nil, err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Size:      info.Size(),
		SHA256:    hex.EncodeToString(hash.Sum(nil)),
		Encrypted: encrypt,
	}, nil
}

// LoadManifest reads an archive manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// Restore copies one archived store back over its native location. The
// replacement goes through the guard, so a live browser or a corrupt
// archive leaves the current store untouched. Encrypted payloads need
// the passphrase for the configured private key.
func (a *Archiver) Restore(manifestPath string, id store.ID, guard *safewrite.Guard, passphrase string) error {
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	entry, err := manifest.entry(id)
	if err != nil {
		return err
	}

	archived, err := os.ReadFile(filepath.Join(filepath.Dir(manifestPath), entry.File))
	if err != nil {
		return fmt.Errorf("reading archived store: %w", err)
	}
	if sum := hex.EncodeToString(sha256Sum(archived)); sum != entry.SHA256 {
		return fmt.Errorf("archive for %s is damaged: checksum mismatch", id)
	}

	payload := archived
	if entry.Encrypted {
		var plain bytes.Buffer
		if err := a.enc.Decrypt(bytes.NewReader(archived), &plain, passphrase); err != nil {
			return fmt.Errorf("decrypting archived store: %w", err)
		}
		payload = plain.Bytes()
	}

	a.logger.Info("restoring store", "store", id, "target", entry.SourcePath)
	return guard.Replace(entry.SourcePath, func(copyPath string) error {
		return os.WriteFile(copyPath, payload, 0644)
	})
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

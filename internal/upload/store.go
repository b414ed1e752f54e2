package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// sniffLen is how much of the file head is used for content detection.
const sniffLen = 3072

// Stored describes a file written by Store.Save.
type Stored struct {
	StoredName  string
	ContentType string
	SizeBytes   int64
}

// Store keeps accepted attachments in a flat directory. Stored names are
// random so user-supplied file names never reach the filesystem.
type Store struct {
	fs     afero.Fs
	policy *Policy
}

// NewStore returns a Store rooted at dir on the OS filesystem.
func NewStore(dir string, policy *Policy) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return NewStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir), policy), nil
}

// NewStoreFs returns a Store over an arbitrary filesystem (afero.NewMemMapFs in tests).
func NewStoreFs(fs afero.Fs, policy *Policy) *Store {
	return &Store{fs: fs, policy: policy}
}

// Policy returns the acceptance policy the store enforces.
func (s *Store) Policy() *Policy { return s.policy }

// Save re-checks the policy, then writes r under a fresh name. At most
// MaxBytes are accepted; a longer body removes the partial file and returns
// an error wrapping ErrRejected.
func (s *Store) Save(name string, size int64, r io.Reader) (*Stored, error) {
	d := s.policy.Check(name, size)
	if err := d.Err(); err != nil {
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	mt := mimetype.Detect(head)

	stored := uuid.New().String() + "." + d.Candidate.Extension
	f, err := s.fs.OpenFile(stored, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(body, s.policy.MaxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > s.policy.MaxBytes {
		err = fmt.Errorf("%w: File size exceeds %s limit", ErrRejected, s.policy.MaxLabel())
	}
	if err != nil {
		_ = s.fs.Remove(stored)
		return nil, fmt.Errorf("write attachment: %w", err)
	}

	return &Stored{StoredName: stored, ContentType: mt.String(), SizeBytes: written}, nil
}

// Open returns a reader for a stored attachment.
func (s *Store) Open(storedName string) (afero.File, error) {
	if !validStoredName(storedName) {
		return nil, fmt.Errorf("invalid stored name %q", storedName)
	}
	return s.fs.Open(storedName)
}

// Remove deletes a stored attachment. Missing files are not an error.
func (s *Store) Remove(storedName string) error {
	if !validStoredName(storedName) {
		return fmt.Errorf("invalid stored name %q", storedName)
	}
	if err := s.fs.Remove(storedName); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func validStoredName(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && !strings.ContainsAny(name, `/\`)
}

// Package storage keeps uploaded product images on local disk.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	log "github.com/sirupsen/logrus"
)

// sniffLen is how many leading bytes filetype needs to recognise a format.
const sniffLen = 261

var (
	ErrNotAnImage = errors.New("uploaded file is not a supported image")
	ErrTooLarge   = errors.New("uploaded file exceeds the size limit")
)

// StoredImage describes a file written by ImageStore.Save.
type StoredImage struct {
	Path        string
	ContentType string
	Extension   string
	Size        int64
}

// ImageStore writes images under Dir/<user id>/<random id>.<ext>.
type ImageStore struct {
	Dir      string
	MaxBytes int64
}

func NewImageStore(dir string, maxBytes int64) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &ImageStore{Dir: dir, MaxBytes: maxBytes}, nil
}

// Save sniffs the content, rejects anything that is not an image and writes it to disk.
// The client-supplied filename and content type are never trusted.
func (s *ImageStore) Save(userID uuid.UUID, r io.Reader) (*StoredImage, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	if !filetype.IsImage(head) {
		return nil, ErrNotAnImage
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return nil, ErrNotAnImage
	}

	dir := filepath.Join(s.Dir, userID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create user upload dir: %w", err)
	}
	dest := filepath.Join(dir, uuid.NewString()+"."+kind.Extension)

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	if s.MaxBytes > 0 {
		body = io.LimitReader(body, s.MaxBytes+1)
	}
	size, err := io.Copy(f, body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && s.MaxBytes > 0 && size > s.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dest)
		return nil, err
	}

	log.Debugf("ImageStore: stored %d bytes of %s for user %s", size, kind.MIME.Value, userID)
	return &StoredImage{Path: dest, ContentType: kind.MIME.Value, Extension: kind.Extension, Size: size}, nil
}

// Package upload receives a multipart file into temporary storage and hands
// its bytes to the caller. Every File must be released with Cleanup.
package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/safar/qr-stock/internal/apperr"
)

type File struct {
	// Name is the client-supplied file name, without directories.
	Name string
	Data []byte

	path string
	once sync.Once
	err  error
}

// Receive streams the multipart part named field into a temporary file in
// dir, at most maxBytes long, and loads it. On error nothing is left on disk.
func Receive(r *http.Request, field, dir string, maxBytes int64) (*File, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "expected a multipart/form-data upload")
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, apperr.Validation("no file uploaded")
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "malformed multipart body")
		}
		if part.FormName() != field || part.FileName() == "" {
			part.Close()
			continue
		}

		f, err := spool(part, filepath.Base(part.FileName()), dir, maxBytes)
		part.Close()
		return f, err
	}
}

func spool(src io.Reader, name, dir string, maxBytes int64) (f *File, err error) {
	tmp, err := os.CreateTemp(dir, "stock-upload-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	f = &File{Name: name, path: tmp.Name()}
	defer func() {
		if err != nil {
			if cerr := f.Cleanup(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			f = nil
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(src, maxBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return f, apperr.Validation("file exceeds %d bytes", maxBytes)
	case err != nil:
		return f, fmt.Errorf("store upload: %w", err)
	}
	if n > maxBytes {
		return f, apperr.Validation("file exceeds %d bytes", maxBytes)
	}

	f.Data, err = os.ReadFile(f.path)
	if err != nil {
		return f, fmt.Errorf("read upload: %w", err)
	}
	return f, nil
}

// Path is the location of the temporary copy.
func (f *File) Path() string { return f.path }

// Cleanup removes the temporary copy. It is safe to call more than once.
func (f *File) Cleanup() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = fmt.Errorf("remove upload %s: %w", f.path, err)
		}
	})
	return f.err
}

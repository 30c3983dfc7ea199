package perw

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Save writes the buffer verbatim to path, truncating any existing file.
// The buffer is left untouched whether or not the write succeeds.
func (img *Image) Save(path string) error {
	if err := os.WriteFile(path, img.buf, 0o644); err != nil {
		return errors.Wrapf(ErrIO, "write %s: %v", path, err)
	}
	img.log.Ok("saved %d bytes to %s", len(img.buf), path)
	return nil
}

// WriteTo implements io.WriterTo.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(img.buf)
	if err != nil {
		return int64(n), errors.Wrapf(ErrIO, "write buffer: %v", err)
	}
	return int64(n), nil
}

// Commit rewrites an open file with the buffer and truncates it to the
// buffer length, for callers editing a file they already hold open.
// Commit: riscrive il file aperto e lo tronca alla nuova lunghezza
func (img *Image) Commit(f *os.File) error {
	if f == nil {
		return errors.Wrap(ErrContract, "commit: nil file")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(ErrIO, "failed to reposition file: %v", err)
	}
	if _, err := f.Write(img.buf); err != nil {
		return errors.Wrapf(ErrIO, "failed to write changes to disk: %v", err)
	}
	if err := f.Truncate(int64(len(img.buf))); err != nil {
		return errors.Wrapf(ErrIO, "failed to resize file: %v", err)
	}
	return nil
}

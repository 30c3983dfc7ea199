package perw

import (
	"os"

	"github.com/pkg/errors"

	"pesurgeon/common"
)

// GapPolicy selects how virtual sizes are repaired after a section is removed.
type GapPolicy int

const (
	// GapRepairSorted walks the remaining sections in virtual address order
	// and stretches every section below the removed one up to its successor.
	GapRepairSorted GapPolicy = iota
	// GapRepairAdjacent applies the same rule to table-order neighbours only.
	GapRepairAdjacent
)

func (p GapPolicy) String() string {
	switch p {
	case GapRepairSorted:
		return "sorted"
	case GapRepairAdjacent:
		return "adjacent"
	default:
		return "unknown"
	}
}

// Image owns the raw bytes of one PE file and every edit applied to them.
//
// An Image is not safe for concurrent use; callers serialize access.
// Descriptors and offsets obtained from it become stale after any edit that
// changes the buffer length.
type Image struct {
	Path string

	buf        []byte
	generation uint64

	dos      *DosHeader
	nt       *NtHeader
	sections []SectionDescriptor
	ready    bool

	log       *common.Logger
	gapPolicy GapPolicy
}

// Option configures an Image.
type Option func(*Image)

// WithLogger injects the logger used for progress and warnings.
func WithLogger(l *common.Logger) Option {
	return func(img *Image) { img.log = l }
}

// WithGapPolicy overrides the default GapRepairSorted policy.
func WithGapPolicy(p GapPolicy) Option {
	return func(img *Image) { img.gapPolicy = p }
}

// Load reads the whole file at path into a new Image.
func Load(path string, opts ...Option) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "read %s: %v", path, err)
	}
	img := FromBytes(data, opts...)
	img.Path = path
	return img, nil
}

// FromBytes wraps data without copying it. The Image owns data afterwards.
func FromBytes(data []byte, opts ...Option) *Image {
	img := &Image{buf: data, gapPolicy: GapRepairSorted}
	for _, opt := range opts {
		opt(img)
	}
	return img
}

// Bytes returns the current buffer. It is invalidated by the next edit.
func (img *Image) Bytes() []byte { return img.buf }

// Length returns the current buffer length.
func (img *Image) Length() int { return len(img.buf) }

// Generation changes every time the buffer length changes.
func (img *Image) Generation() uint64 { return img.generation }

// IsCurrent reports whether d was read from the current buffer layout.
func (img *Image) IsCurrent(d SectionDescriptor) bool { return d.generation == img.generation }

// Logger returns the injected logger, possibly nil.
func (img *Image) Logger() *common.Logger { return img.log }

func (img *Image) inBounds(off, n int64) bool {
	return off >= 0 && n >= 0 && off <= int64(len(img.buf)) && n <= int64(len(img.buf))-off
}

// eraseRange removes n bytes at off and returns the new length.
func (img *Image) eraseRange(off, n int64) (int, error) {
	if !img.inBounds(off, n) {
		return len(img.buf), errors.Wrapf(ErrOutOfBounds, "erase [0x%x,+0x%x) of %d bytes", off, n, len(img.buf))
	}
	if n == 0 {
		return len(img.buf), nil
	}
	img.buf = append(img.buf[:off], img.buf[off+n:]...)
	img.generation++
	return len(img.buf), nil
}

// insertRange inserts data at off and returns the new length.
func (img *Image) insertRange(off int64, data []byte) (int, error) {
	if !img.inBounds(off, 0) {
		return len(img.buf), errors.Wrapf(ErrOutOfBounds, "insert at 0x%x of %d bytes", off, len(img.buf))
	}
	if len(data) == 0 {
		return len(img.buf), nil
	}
	grown := make([]byte, 0, len(img.buf)+len(data))
	grown = append(grown, img.buf[:off]...)
	grown = append(grown, data...)
	grown = append(grown, img.buf[off:]...)
	img.buf = grown
	img.generation++
	return len(img.buf), nil
}

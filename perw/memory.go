package perw

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

func validWidth(width int) bool {
	switch width {
	case 1, 2, 4, 8:
		return true
	}
	return false
}

// ReadScalar reads a little-endian unsigned value of width bytes at offset.
func (img *Image) ReadScalar(offset int64, width int) (uint64, error) {
	if !validWidth(width) {
		return 0, errors.Wrapf(ErrContract, "unsupported scalar width %d", width)
	}
	if !img.inBounds(offset, int64(width)) {
		return 0, errors.Wrapf(ErrOutOfBounds, "read %d bytes at 0x%x of %d", width, offset, len(img.buf))
	}
	b := img.buf[offset : offset+int64(width)]
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	default:
		return binary.LittleEndian.Uint64(b), nil
	}
}

// WriteScalar writes value little-endian into width bytes at offset. Nothing
// is written when the range is out of bounds or value does not fit.
func (img *Image) WriteScalar(offset int64, width int, value uint64) error {
	if !validWidth(width) {
		return errors.Wrapf(ErrContract, "unsupported scalar width %d", width)
	}
	if width < 8 && value>>(uint(width)*8) != 0 {
		return errors.Wrapf(ErrContract, "value 0x%x does not fit in %d bytes", value, width)
	}
	if !img.inBounds(offset, int64(width)) {
		return errors.Wrapf(ErrOutOfBounds, "write %d bytes at 0x%x of %d", width, offset, len(img.buf))
	}
	b := img.buf[offset : offset+int64(width)]
	switch width {
	case 1:
		b[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(value))
	default:
		binary.LittleEndian.PutUint64(b, value)
	}
	return nil
}

// Read reads a T at off, its width taken from the type. Platform sized
// types (uint, uintptr) have no fixed width and fail with ErrContract.
func Read[T constraints.Unsigned](img *Image, off int64) (T, error) {
	var zero T
	v, err := img.ReadScalar(off, binary.Size(zero))
	if err != nil {
		return zero, err
	}
	return T(v), nil
}

// Write stores v at off, its width taken from the type.
func Write[T constraints.Unsigned](img *Image, off int64, v T) error {
	return img.WriteScalar(off, binary.Size(v), uint64(v))
}

func (img *Image) readBytes(off, n int64) ([]byte, error) {
	if !img.inBounds(off, n) {
		return nil, errors.Wrapf(ErrOutOfBounds, "read [0x%x,+0x%x) of %d bytes", off, n, len(img.buf))
	}
	return img.buf[off : off+n], nil
}

// fillRegion zeroes n bytes at off.
func (img *Image) fillRegion(off, n int64) error {
	if !img.inBounds(off, n) {
		return errors.Wrapf(ErrOutOfBounds, "fill [0x%x,+0x%x) of %d bytes", off, n, len(img.buf))
	}
	clear(img.buf[off : off+n])
	return nil
}

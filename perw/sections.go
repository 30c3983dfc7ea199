package perw

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Enumerate reads the section table described by nt. A second call fails with
// ErrDuplicateInit unless allowReinit is set. Nothing is published when the
// table is invalid.
func (img *Image) Enumerate(nt *NtHeader, allowReinit bool) ([]SectionDescriptor, error) {
	if nt == nil {
		return nil, errors.Wrap(ErrContract, "enumerate: nil nt header")
	}
	if img.ready && !allowReinit {
		return nil, ErrDuplicateInit
	}
	table, err := img.readSectionTable(nt)
	if err != nil {
		return nil, err
	}

	img.nt = nt
	img.sections = table
	img.ready = true
	img.log.Info("section table: %d entries at 0x%x", len(table), nt.SectionTableOffset())
	return img.Sections(), nil
}

func (img *Image) readSectionTable(nt *NtHeader) ([]SectionDescriptor, error) {
	count := int(nt.SectionCount())
	start := nt.SectionTableOffset()
	table := make([]SectionDescriptor, 0, count)

	for i := 0; i < count; i++ {
		off := start + int64(i)*sectionHeaderSize
		raw, err := img.readBytes(off, sectionHeaderSize)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "section table truncated at index %d", i)
		}
		if raw[0] != '.' {
			return nil, errors.Wrapf(ErrFormat, "invalid section at index %d", i)
		}
		d := SectionDescriptor{
			Index:            i,
			HeaderOffset:     off,
			VirtualSize:      binary.LittleEndian.Uint32(raw[8:12]),
			VirtualAddress:   binary.LittleEndian.Uint32(raw[12:16]),
			SizeOfRawData:    binary.LittleEndian.Uint32(raw[16:20]),
			PointerToRawData: binary.LittleEndian.Uint32(raw[20:24]),
			Characteristics:  binary.LittleEndian.Uint32(raw[36:40]),
			generation:       img.generation,
		}
		copy(d.Name[:], raw[:sectionNameSize])
		table = append(table, d)
	}
	return table, nil
}

// Sections returns a copy of the current section table.
func (img *Image) Sections() []SectionDescriptor {
	out := make([]SectionDescriptor, len(img.sections))
	copy(out, img.sections)
	return out
}

// SectionByName returns the first section whose 8-byte name equals name.
func (img *Image) SectionByName(name string) (SectionDescriptor, error) {
	if !img.ready {
		return SectionDescriptor{}, errors.Wrap(ErrContract, "section lookup before enumerate")
	}
	i := img.indexOf(name)
	if i < 0 {
		return SectionDescriptor{}, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return img.sections[i], nil
}

func (img *Image) indexOf(name string) int {
	if len(name) > sectionNameSize {
		return -1
	}
	var key [sectionNameSize]byte
	copy(key[:], name)
	for i, s := range img.sections {
		if s.Name == key {
			return i
		}
	}
	return -1
}

// writeDescriptor stores the mutable fields of d back into its slot.
func (img *Image) writeDescriptor(d SectionDescriptor) error {
	for _, f := range []struct {
		off int64
		v   uint32
	}{
		{8, d.VirtualSize},
		{12, d.VirtualAddress},
		{16, d.SizeOfRawData},
		{20, d.PointerToRawData},
	} {
		if err := Write[uint32](img, d.HeaderOffset+f.off, f.v); err != nil {
			return errors.Wrapf(err, "section %s header", d.NameString())
		}
	}
	return nil
}

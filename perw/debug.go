package perw

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

var rsdsSignature = []byte("RSDS")

// rvaToOffset maps rva through the current section table.
func (img *Image) rvaToOffset(rva uint32) (int64, bool) {
	for _, s := range img.sections {
		if s.containsRVA(rva) {
			return int64(s.PointerToRawData) + int64(rva-s.VirtualAddress), true
		}
	}
	return 0, false
}

// debugDirectoryRange returns the data directory and the file range of the
// debug directory it points at.
func (img *Image) debugDirectoryRange() (DataDirectory, int64, bool, error) {
	dir, _ := img.nt.DataDirectory(debugDirectoryIndex)
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return dir, 0, false, nil
	}
	off, ok := img.rvaToOffset(dir.VirtualAddress)
	if !ok {
		return dir, 0, false, errors.Wrapf(ErrFormat, "unmappable debug rva 0x%x", dir.VirtualAddress)
	}
	if !img.inBounds(off, int64(dir.Size)) {
		return dir, 0, false, errors.Wrapf(ErrFormat, "debug directory out of bounds [0x%x,+0x%x)", off, dir.Size)
	}
	return dir, off, true, nil
}

// DebugEntries lists the IMAGE_DEBUG_DIRECTORY records without modifying
// anything. An image without a debug directory yields no entries.
func (img *Image) DebugEntries() ([]DebugDirectoryEntry, error) {
	if !img.ready {
		return nil, errors.Wrap(ErrContract, "debug entries before enumerate")
	}
	dir, off, present, err := img.debugDirectoryRange()
	if err != nil || !present {
		return nil, err
	}

	count := int64(dir.Size) / debugEntrySize
	entries := make([]DebugDirectoryEntry, 0, count)
	for i := int64(0); i < count; i++ {
		at := off + i*debugEntrySize
		raw, err := img.readBytes(at, debugEntrySize)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "debug entry %d truncated", i)
		}
		entries = append(entries, DebugDirectoryEntry{
			Characteristics:  binary.LittleEndian.Uint32(raw[0:4]),
			TimeDateStamp:    binary.LittleEndian.Uint32(raw[4:8]),
			MajorVersion:     binary.LittleEndian.Uint16(raw[8:10]),
			MinorVersion:     binary.LittleEndian.Uint16(raw[10:12]),
			Type:             binary.LittleEndian.Uint32(raw[12:16]),
			SizeOfData:       binary.LittleEndian.Uint32(raw[16:20]),
			AddressOfRawData: binary.LittleEndian.Uint32(raw[20:24]),
			PointerToRawData: binary.LittleEndian.Uint32(raw[24:28]),
			Offset:           at,
		})
	}
	return entries, nil
}

// CodeView decodes the RSDS record referenced by a CODEVIEW entry.
func (img *Image) CodeView(e DebugDirectoryEntry) (*CodeViewInfo, error) {
	if e.Type != DebugTypeCodeView {
		return nil, errors.Wrapf(ErrFormat, "debug entry type %s is not codeview", e.TypeName())
	}
	// signature + guid + age + at least the terminating NUL
	if e.SizeOfData < 25 {
		return nil, errors.Wrapf(ErrFormat, "codeview record of %d bytes", e.SizeOfData)
	}
	raw, err := img.readBytes(int64(e.PointerToRawData), int64(e.SizeOfData))
	if err != nil {
		return nil, errors.Wrap(ErrFormat, "codeview record out of bounds")
	}
	if !bytes.Equal(raw[:4], rsdsSignature) {
		return nil, errors.Wrapf(ErrFormat, "unsupported codeview signature %q", raw[:4])
	}

	cv := &CodeViewInfo{Age: binary.LittleEndian.Uint32(raw[20:24])}
	copy(cv.GUID[:], raw[4:20])
	path := raw[24:]
	if i := bytes.IndexByte(path, 0); i >= 0 {
		path = path[:i]
	}
	cv.PDBPath = string(path)
	return cv, nil
}

// ClearDebugDirectory zeroes every debug payload, the directory itself and
// the debug data directory entry. The buffer length never changes and a
// second call is a no-op.
func (img *Image) ClearDebugDirectory() error {
	if !img.ready {
		return errors.Wrap(ErrContract, "clear debug directory before enumerate")
	}

	dir, ok := img.nt.DataDirectory(debugDirectoryIndex)
	if !ok || (dir.VirtualAddress == 0 && dir.Size == 0) {
		img.log.Info("no debug directory")
		return nil
	}
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		img.log.Warn("degenerate debug directory (va=0x%x size=0x%x), resetting entry", dir.VirtualAddress, dir.Size)
		return img.zeroDataDirectory(dir)
	}

	entries, err := img.DebugEntries()
	if err != nil {
		return err
	}
	_, dirOff, _, err := img.debugDirectoryRange()
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.SizeOfData == 0 || e.PointerToRawData == 0 {
			continue
		}
		if !img.inBounds(int64(e.PointerToRawData), int64(e.SizeOfData)) {
			return errors.Wrapf(ErrFormat, "debug entry %d payload out of bounds [0x%x,+0x%x)",
				i, e.PointerToRawData, e.SizeOfData)
		}
	}

	for _, e := range entries {
		if e.SizeOfData == 0 || e.PointerToRawData == 0 {
			continue
		}
		if cv, err := img.CodeView(e); err == nil {
			img.log.Info("dropping pdb reference %s (%s)", cv.PDBPath, cv)
		}
		if err := img.fillRegion(int64(e.PointerToRawData), int64(e.SizeOfData)); err != nil {
			return err
		}
	}
	if err := img.fillRegion(dirOff, int64(dir.Size)); err != nil {
		return err
	}
	if err := img.zeroDataDirectory(dir); err != nil {
		return err
	}
	img.log.Ok("debug directory cleared: %d entries", len(entries))
	return nil
}

func (img *Image) zeroDataDirectory(dir DataDirectory) error {
	if err := Write[uint32](img, dir.Offset, 0); err != nil {
		return err
	}
	return Write[uint32](img, dir.Offset+4, 0)
}

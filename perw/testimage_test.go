package perw

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// Layout of the synthetic PE32+ images built by the tests.
const (
	tDosHeaderSize        = 0x40
	tOptionalHeaderOffset = tDosHeaderSize + 4 + fileHeaderSize // 0x58
	tOptionalHeader64Size = 240
	tSectionTableOffset   = tOptionalHeaderOffset + tOptionalHeader64Size // 0x148
	tRvaCountOffset       = tOptionalHeaderOffset + 108
	tDebugDirEntryOffset  = tOptionalHeaderOffset + 112 + debugDirectoryIndex*dataDirectorySize
	tHeadersSize          = 0x400
)

type testSection struct {
	name  string
	va    uint32
	vsize uint32
	ptr   uint32
	size  uint32
	fill  byte
	chars uint32
}

func standardSections() []testSection {
	return []testSection{
		{name: ".text", va: 0x1000, vsize: 0x180, ptr: 0x400, size: 0x200, fill: 0x11, chars: 0x60000020},
		{name: ".rdata", va: 0x2000, vsize: 0x180, ptr: 0x600, size: 0x200, fill: 0x22, chars: 0x40000040},
		{name: ".debug", va: 0x3000, vsize: 0x100, ptr: 0x800, size: 0x200, fill: 0x33, chars: 0x42000040},
	}
}

// buildPE64 lays out a minimal AMD64 image with the given sections.
func buildPE64(t *testing.T, sections []testSection) []byte {
	t.Helper()

	size := uint32(tHeadersSize)
	for _, s := range sections {
		if end := s.ptr + s.size; end > size {
			size = end
		}
	}
	data := make([]byte, size)
	le := binary.LittleEndian

	// DOS header
	data[0], data[1] = 'M', 'Z'
	le.PutUint32(data[dosLfanewOffset:], tDosHeaderSize)

	// PE signature + COFF header
	copy(data[tDosHeaderSize:], []byte{'P', 'E', 0, 0})
	fh := tDosHeaderSize + 4
	le.PutUint16(data[fh:], 0x8664)
	le.PutUint16(data[fh+2:], uint16(len(sections)))
	le.PutUint16(data[fh+16:], tOptionalHeader64Size)
	le.PutUint16(data[fh+18:], 0x22)

	// Optional header
	oh := tOptionalHeaderOffset
	le.PutUint16(data[oh:], optionalMagicPE32Plus)
	le.PutUint32(data[oh+16:], 0x1000) // AddressOfEntryPoint
	le.PutUint64(data[oh+24:], 0x140000000)
	le.PutUint32(data[oh+32:], 0x1000) // SectionAlignment
	le.PutUint32(data[oh+36:], 0x200)  // FileAlignment
	le.PutUint16(data[oh+40:], 6)      // MajorOperatingSystemVersion
	le.PutUint16(data[oh+48:], 6)      // MajorSubsystemVersion
	le.PutUint32(data[oh+56:], 0x4000) // SizeOfImage
	le.PutUint32(data[oh+60:], tHeadersSize)
	le.PutUint16(data[oh+68:], 3) // console
	le.PutUint32(data[tRvaCountOffset:], 16)

	for i, s := range sections {
		off := tSectionTableOffset + i*sectionHeaderSize
		require.LessOrEqual(t, len(s.name), sectionNameSize)
		copy(data[off:off+8], s.name)
		le.PutUint32(data[off+8:], s.vsize)
		le.PutUint32(data[off+12:], s.va)
		le.PutUint32(data[off+16:], s.size)
		le.PutUint32(data[off+20:], s.ptr)
		le.PutUint32(data[off+36:], s.chars)
		for j := s.ptr; j < s.ptr+s.size; j++ {
			data[j] = s.fill
		}
	}
	require.LessOrEqual(t, tSectionTableOffset+len(sections)*sectionHeaderSize, tHeadersSize)
	return data
}

// Debug directory of buildDebugPE64: one CODEVIEW entry stored in .rdata.
const (
	tDebugDirRVA     = 0x2010
	tDebugDirFileOff = 0x610
	tCodeViewOffset  = 0x700
	tCodeViewSize    = 0x40
	tCodeViewRVA     = 0x2100
	tPDBPath         = "test.pdb"
)

var tGUID = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

func putDebugEntry(data []byte, off int, e DebugDirectoryEntry) {
	le := binary.LittleEndian
	le.PutUint32(data[off:], e.Characteristics)
	le.PutUint32(data[off+4:], e.TimeDateStamp)
	le.PutUint16(data[off+8:], e.MajorVersion)
	le.PutUint16(data[off+10:], e.MinorVersion)
	le.PutUint32(data[off+12:], e.Type)
	le.PutUint32(data[off+16:], e.SizeOfData)
	le.PutUint32(data[off+20:], e.AddressOfRawData)
	le.PutUint32(data[off+24:], e.PointerToRawData)
}

func setDebugDirectory(data []byte, rva, size uint32) {
	binary.LittleEndian.PutUint32(data[tDebugDirEntryOffset:], rva)
	binary.LittleEndian.PutUint32(data[tDebugDirEntryOffset+4:], size)
}

// buildDebugPE64 is the standard image plus a debug directory at RVA 0x2010
// whose single CODEVIEW entry references test.pdb.
func buildDebugPE64(t *testing.T) []byte {
	t.Helper()
	data := buildPE64(t, standardSections())

	putDebugEntry(data, tDebugDirFileOff, DebugDirectoryEntry{
		TimeDateStamp:    0x5f000000,
		Type:             DebugTypeCodeView,
		SizeOfData:       tCodeViewSize,
		AddressOfRawData: tCodeViewRVA,
		PointerToRawData: tCodeViewOffset,
	})
	cv := data[tCodeViewOffset : tCodeViewOffset+tCodeViewSize]
	clear(cv)
	copy(cv, "RSDS")
	copy(cv[4:], tGUID[:])
	binary.LittleEndian.PutUint32(cv[20:], 3)
	copy(cv[24:], tPDBPath)

	setDebugDirectory(data, tDebugDirRVA, debugEntrySize)
	return data
}

// prepared runs the header and section table stages over data.
func prepared(t *testing.T, data []byte, opts ...Option) *Image {
	t.Helper()
	img := FromBytes(data, opts...)
	require.NoError(t, img.prepare())
	return img
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

func allBytes(b []byte, v byte) bool {
	for _, x := range b {
		if x != v {
			return false
		}
	}
	return true
}

func sectionNames(sections []SectionDescriptor) []string {
	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = s.NameString()
	}
	return names
}

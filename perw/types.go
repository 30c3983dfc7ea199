package perw

import (
	"bytes"
	"fmt"
)

// Layout constants of the on-disk PE format.
const (
	dosSignature      = 0x5A4D // "MZ"
	ntSignature       = 0x00004550
	dosLfanewOffset   = 0x3C
	fileHeaderSize    = 20
	sectionHeaderSize = 40
	debugEntrySize    = 28
	sectionNameSize   = 8

	optionalMagicPE32     = 0x10b
	optionalMagicPE32Plus = 0x20b

	// IMAGE_DIRECTORY_ENTRY_DEBUG
	debugDirectoryIndex = 6
	dataDirectorySize   = 8
)

// DosHeader holds the two DOS header fields the editor cares about.
type DosHeader struct {
	Magic        uint16
	HeaderOffset uint32 // e_lfanew
}

// NtHeader is a view over the NT headers of an Image. Only the anchor offset
// and the optional header magic are cached; every other field is read from
// the current buffer, so the view stays correct after sections are removed.
type NtHeader struct {
	img    *Image
	Offset int64
	Magic  uint16
}

// Is64Bit reports a PE32+ optional header.
func (h *NtHeader) Is64Bit() bool { return h.Magic == optionalMagicPE32Plus }

func (h *NtHeader) fileHeaderOffset() int64     { return h.Offset + 4 }
func (h *NtHeader) optionalHeaderOffset() int64 { return h.Offset + 4 + fileHeaderSize }

// SectionCount returns NumberOfSections.
func (h *NtHeader) SectionCount() uint16 {
	v, _ := Read[uint16](h.img, h.fileHeaderOffset()+2)
	return v
}

// OptionalHeaderSize returns SizeOfOptionalHeader.
func (h *NtHeader) OptionalHeaderSize() uint16 {
	v, _ := Read[uint16](h.img, h.fileHeaderOffset()+16)
	return v
}

// SectionTableOffset is the file offset of the first section header.
func (h *NtHeader) SectionTableOffset() int64 {
	return h.optionalHeaderOffset() + int64(h.OptionalHeaderSize())
}

func (h *NtHeader) rvaCountOffset() int64 {
	if h.Is64Bit() {
		return h.optionalHeaderOffset() + 108
	}
	return h.optionalHeaderOffset() + 92
}

func (h *NtHeader) dataDirectoryOffset(index int) int64 {
	base := h.optionalHeaderOffset() + 96
	if h.Is64Bit() {
		base = h.optionalHeaderOffset() + 112
	}
	return base + int64(index)*dataDirectorySize
}

// DataDirectory returns the virtual address and size of a data directory
// entry. Entries beyond NumberOfRvaAndSizes, or outside the optional header,
// read as zero.
func (h *NtHeader) DataDirectory(index int) (DataDirectory, bool) {
	count, err := Read[uint32](h.img, h.rvaCountOffset())
	if err != nil || index < 0 || uint32(index) >= count {
		return DataDirectory{}, false
	}
	off := h.dataDirectoryOffset(index)
	if off+dataDirectorySize > h.SectionTableOffset() {
		return DataDirectory{}, false
	}
	va, err := Read[uint32](h.img, off)
	if err != nil {
		return DataDirectory{}, false
	}
	size, err := Read[uint32](h.img, off+4)
	if err != nil {
		return DataDirectory{}, false
	}
	return DataDirectory{VirtualAddress: va, Size: size, Offset: off}, true
}

// DataDirectory is one IMAGE_DATA_DIRECTORY slot of the optional header.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
	Offset         int64
}

// SectionDescriptor is a snapshot of one section header. It is only valid
// for the buffer layout it was read from, see Image.IsCurrent.
type SectionDescriptor struct {
	Index            int
	HeaderOffset     int64
	Name             [sectionNameSize]byte
	VirtualSize      uint32
	VirtualAddress   uint32
	SizeOfRawData    uint32
	PointerToRawData uint32
	Characteristics  uint32

	generation uint64
}

// NameString returns the section name without NUL padding.
func (s SectionDescriptor) NameString() string {
	return string(bytes.TrimRight(s.Name[:], "\x00"))
}

func (s SectionDescriptor) String() string {
	return fmt.Sprintf("%-8s va=0x%08x vsize=0x%08x raw=0x%08x rawsize=0x%08x",
		s.NameString(), s.VirtualAddress, s.VirtualSize, s.PointerToRawData, s.SizeOfRawData)
}

// containsRVA uses VirtualSize as the mapped span, falling back to the raw
// size for sections that leave it zero.
func (s SectionDescriptor) containsRVA(rva uint32) bool {
	span := s.VirtualSize
	if span == 0 {
		span = s.SizeOfRawData
	}
	return rva >= s.VirtualAddress && uint64(rva) < uint64(s.VirtualAddress)+uint64(span)
}

// DebugDirectoryEntry is one IMAGE_DEBUG_DIRECTORY record.
type DebugDirectoryEntry struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32

	Offset int64
}

// IMAGE_DEBUG_TYPE_*
const (
	DebugTypeUnknown              = 0
	DebugTypeCOFF                 = 1
	DebugTypeCodeView             = 2
	DebugTypeFPO                  = 3
	DebugTypeMisc                 = 4
	DebugTypeVCFeature            = 12
	DebugTypePOGO                 = 13
	DebugTypeILTCG                = 14
	DebugTypeRepro                = 16
	DebugTypeExDllCharacteristics = 20
)

// TypeName returns a readable name for the entry type.
func (e DebugDirectoryEntry) TypeName() string {
	switch e.Type {
	case DebugTypeCOFF:
		return "COFF"
	case DebugTypeCodeView:
		return "CODEVIEW"
	case DebugTypeFPO:
		return "FPO"
	case DebugTypeMisc:
		return "MISC"
	case DebugTypeVCFeature:
		return "VC_FEATURE"
	case DebugTypePOGO:
		return "POGO"
	case DebugTypeILTCG:
		return "ILTCG"
	case DebugTypeRepro:
		return "REPRO"
	case DebugTypeExDllCharacteristics:
		return "EX_DLLCHARACTERISTICS"
	default:
		return fmt.Sprintf("TYPE_%d", e.Type)
	}
}

// CodeViewInfo is a decoded RSDS record.
type CodeViewInfo struct {
	GUID    [16]byte
	Age     uint32
	PDBPath string
}

// String formats the symbol server key of the record.
func (c *CodeViewInfo) String() string {
	d1 := uint32(c.GUID[0]) | uint32(c.GUID[1])<<8 | uint32(c.GUID[2])<<16 | uint32(c.GUID[3])<<24
	d2 := uint16(c.GUID[4]) | uint16(c.GUID[5])<<8
	d3 := uint16(c.GUID[6]) | uint16(c.GUID[7])<<8
	return fmt.Sprintf("%08X%04X%04X%X%X", d1, d2, d3, c.GUID[8:], c.Age)
}

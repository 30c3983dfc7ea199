package perw

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// SectionReport describes one section for the -inspect output.
type SectionReport struct {
	SectionDescriptor
	Entropy float64
	Flags   string
	Kind    string
	SHA256  string
}

// ImageReport summarizes an enumerated image.
type ImageReport struct {
	Is64Bit       bool
	Length        int
	Sections      []SectionReport
	DebugEntries  []DebugDirectoryEntry
	PDBPath       string
	OverlayOffset int64
	OverlaySize   int64
	LikelyPacked  bool
}

// Inspect reports per-section entropy, flags, payload kind and digest, the
// debug directory entries and any overlay after the last section.
func (img *Image) Inspect() (*ImageReport, error) {
	if !img.ready {
		return nil, errors.Wrap(ErrContract, "inspect before enumerate")
	}
	rep := &ImageReport{Is64Bit: img.nt.Is64Bit(), Length: len(img.buf)}

	var end int64
	for _, s := range img.sections {
		r := SectionReport{SectionDescriptor: s, Flags: decodeSectionFlags(s.Characteristics), Kind: "empty"}
		if raw, err := img.readBytes(int64(s.PointerToRawData), int64(s.SizeOfRawData)); err == nil && len(raw) > 0 {
			sum := sha256.Sum256(raw)
			r.Entropy = CalculateEntropy(raw)
			r.Kind = payloadKind(raw)
			r.SHA256 = hex.EncodeToString(sum[:])
			if e := int64(s.PointerToRawData) + int64(s.SizeOfRawData); e > end {
				end = e
			}
		} else if s.SizeOfRawData > 0 {
			r.Kind = "out of bounds"
		}
		rep.Sections = append(rep.Sections, r)
	}
	if end > 0 && end < int64(len(img.buf)) {
		rep.OverlayOffset = end
		rep.OverlaySize = int64(len(img.buf)) - end
	}
	rep.LikelyPacked = isLikelyPacked(rep.Sections)

	entries, err := img.DebugEntries()
	if err != nil {
		img.log.Warn("debug directory unreadable: %v", err)
	}
	rep.DebugEntries = entries
	for _, e := range entries {
		if e.Type != DebugTypeCodeView {
			continue
		}
		if cv, err := img.CodeView(e); err == nil {
			rep.PDBPath = cv.PDBPath
		}
	}
	return rep, nil
}

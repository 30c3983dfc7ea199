package perw

import (
	"github.com/pkg/errors"
)

// LocateDosHeader validates the MZ signature and reads e_lfanew.
func (img *Image) LocateDosHeader() (*DosHeader, error) {
	magic, err := Read[uint16](img, 0)
	if err != nil || magic != dosSignature {
		return nil, errors.Wrap(ErrFormat, "bad dos signature")
	}
	lfanew, err := Read[uint32](img, dosLfanewOffset)
	if err != nil {
		return nil, errors.Wrap(ErrFormat, "truncated dos header")
	}

	img.dos = &DosHeader{Magic: magic, HeaderOffset: lfanew}
	img.log.Info("dos header ok, nt headers at 0x%x", lfanew)
	return img.dos, nil
}

// LocateNtHeader validates the NT headers pointed to by dos.
func (img *Image) LocateNtHeader(dos *DosHeader) (*NtHeader, error) {
	if dos == nil {
		return nil, errors.Wrap(ErrContract, "locate nt header: nil dos header")
	}
	off := int64(dos.HeaderOffset)
	sig, err := Read[uint32](img, off)
	if err != nil || sig != ntSignature {
		return nil, errors.Wrap(ErrFormat, "bad nt signature")
	}

	nt := &NtHeader{img: img, Offset: off}
	if !img.inBounds(nt.fileHeaderOffset(), fileHeaderSize) {
		return nil, errors.Wrap(ErrFormat, "truncated nt header")
	}
	optSize := int64(nt.OptionalHeaderSize())
	if optSize < 2 || !img.inBounds(nt.optionalHeaderOffset(), optSize) {
		return nil, errors.Wrapf(ErrFormat, "truncated nt header: optional header of %d bytes", optSize)
	}

	magic, _ := Read[uint16](img, nt.optionalHeaderOffset())
	switch magic {
	case optionalMagicPE32, optionalMagicPE32Plus:
	default:
		return nil, errors.Wrapf(ErrFormat, "unknown optional header magic 0x%x", magic)
	}
	nt.Magic = magic

	img.nt = nt
	img.log.Info("nt headers ok: %d sections, pe32+=%v", nt.SectionCount(), nt.Is64Bit())
	return nt, nil
}

// Headers returns the located headers, nil until the matching Locate call.
func (img *Image) Headers() (*DosHeader, *NtHeader) { return img.dos, img.nt }

package perw

import (
	"bytes"
	"debug/pe"

	"github.com/pkg/errors"
	peparser "github.com/saferwall/pe"
)

// CrossCheck re-parses the current buffer with two independent PE parsers and
// compares their section tables with the editor's own view.
func (img *Image) CrossCheck() error {
	if !img.ready {
		return errors.Wrap(ErrContract, "cross-check before enumerate")
	}
	want := make([]string, len(img.sections))
	for i, s := range img.sections {
		want[i] = s.NameString()
	}

	f, err := pe.NewFile(bytes.NewReader(img.buf))
	if err != nil {
		return errors.Wrapf(ErrFormat, "debug/pe: %v", err)
	}
	defer f.Close()
	got := make([]string, len(f.Sections))
	for i, s := range f.Sections {
		got[i] = s.Name
	}
	if err := compareSectionNames("debug/pe", want, got); err != nil {
		return err
	}

	// NewBytes does not map anything, the parser is not closed
	p, err := peparser.NewBytes(img.buf, &peparser.Options{})
	if err != nil {
		return errors.Wrapf(ErrFormat, "saferwall/pe: %v", err)
	}
	if err := p.Parse(); err != nil {
		return errors.Wrapf(ErrFormat, "saferwall/pe: %v", err)
	}
	if n := int(p.NtHeader.FileHeader.NumberOfSections); n != len(want) {
		return errors.Wrapf(ErrFormat, "saferwall/pe: %d sections in file header, expected %d", n, len(want))
	}
	got = got[:0]
	for _, s := range p.Sections {
		got = append(got, string(bytes.TrimRight(s.Header.Name[:], "\x00")))
	}
	if err := compareSectionNames("saferwall/pe", want, got); err != nil {
		return err
	}

	img.log.Info("cross-check ok: %d sections", len(want))
	return nil
}

func compareSectionNames(parser string, want, got []string) error {
	if len(want) != len(got) {
		return errors.Wrapf(ErrFormat, "%s: %d sections, expected %d", parser, len(got), len(want))
	}
	for i := range want {
		if want[i] != got[i] {
			return errors.Wrapf(ErrFormat, "%s: section %d is %q, expected %q", parser, i, got[i], want[i])
		}
	}
	return nil
}

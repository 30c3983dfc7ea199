package perw

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"pesurgeon/common"
)

// Wrapper functions provide the path based API used by the command line.
// They open the file, run the edit and write the result back.

// Open loads path and runs the header and section table stages.
func Open(path string, opts ...Option) (*Image, error) {
	img, err := Load(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := img.prepare(); err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return img, nil
}

func (img *Image) prepare() error {
	dos, err := img.LocateDosHeader()
	if err != nil {
		return err
	}
	nt, err := img.LocateNtHeader(dos)
	if err != nil {
		return err
	}
	_, err = img.Enumerate(nt, false)
	return err
}

// openForEdit opens filePath read-write and prepares an Image over its bytes.
func openForEdit(filePath string, opts ...Option) (*os.File, *Image, error) {
	file, err := os.OpenFile(filePath, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrIO, "failed to open file: %v", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		_ = file.Close()
		return nil, nil, errors.Wrapf(ErrIO, "failed to read file: %v", err)
	}
	img := FromBytes(data, opts...)
	img.Path = filePath
	if err := img.prepare(); err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return file, img, nil
}

// ClearDebugDirectoryDetailed clears the debug directory of filePath in place.
func ClearDebugDirectoryDetailed(filePath string, opts ...Option) *common.OperationResult {
	file, img, err := openForEdit(filePath, opts...)
	if err != nil {
		return common.NewFailed(err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	entries, err := img.DebugEntries()
	if err != nil {
		return common.NewFailed(err)
	}
	if len(entries) == 0 {
		return common.NewSkipped("no debug directory")
	}
	if err := img.ClearDebugDirectory(); err != nil {
		return common.NewFailed(err)
	}
	if err := img.Commit(file); err != nil {
		return common.NewFailed(err)
	}
	return common.NewApplied("cleared debug directory", len(entries))
}

// DeleteSectionsDetailed removes the named sections from filePath in place.
// Names missing from the image are skipped.
func DeleteSectionsDetailed(filePath string, names []string, opts ...Option) *common.OperationResult {
	file, img, err := openForEdit(filePath, opts...)
	if err != nil {
		return common.NewFailed(err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	before := img.Length()
	var removed []string
	for _, name := range names {
		err := img.DeleteSection(name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return common.NewFailed(err)
		}
		removed = append(removed, name)
	}
	if len(removed) == 0 {
		return common.NewSkipped("no matching sections")
	}
	if err := img.Commit(file); err != nil {
		return common.NewFailed(err)
	}
	res := common.NewApplied("removed "+strings.Join(removed, ", "), len(removed))
	res.Removed = int64(before - img.Length())
	return res
}

// EditPlan lists the edits EditFile applies, in this order: debug directory,
// explicit sections, preset sections, cross-check.
type EditPlan struct {
	StripDebug bool
	Remove     []string
	Presets    []common.SectionType
	Verify     bool
}

// Empty reports a plan with no edits.
func (p EditPlan) Empty() bool {
	return !p.StripDebug && len(p.Remove) == 0 && len(p.Presets) == 0
}

// EditFile applies plan to inPath and saves the result to outPath, which may
// equal inPath. Explicitly named sections must exist, preset sections are
// removed when present.
func EditFile(inPath, outPath string, plan EditPlan, opts ...Option) *common.OperationResult {
	img, err := Open(inPath, opts...)
	if err != nil {
		return common.NewFailed(err)
	}
	if plan.Empty() {
		return common.NewSkipped("nothing to do")
	}

	res := &common.OperationResult{}
	before := img.Length()

	if plan.StripDebug {
		entries, err := img.DebugEntries()
		if err != nil {
			return common.NewFailed(err)
		}
		if err := img.ClearDebugDirectory(); err != nil {
			return common.NewFailed(err)
		}
		if len(entries) > 0 {
			res.Count += len(entries)
			res.AddDetail(fmt.Sprintf("cleared %d debug directory entries", len(entries)), len(entries), false)
		}
	}

	for _, name := range plan.Remove {
		if err := img.DeleteSection(name); err != nil {
			return common.NewFailed(errors.WithMessagef(err, "remove %s", name))
		}
		res.Count++
		res.AddDetail("removed section "+name, 1, false)
	}

	if len(plan.Presets) > 0 {
		matchers := common.GetSectionMatchers()
		names := make([]string, 0, len(img.sections))
		for _, s := range img.sections {
			names = append(names, s.NameString())
		}
		for _, name := range common.SelectSections(names, plan.Presets...) {
			if err := img.DeleteSection(name); err != nil {
				return common.NewFailed(errors.WithMessagef(err, "remove %s", name))
			}
			risky := false
			for _, t := range plan.Presets {
				if m := matchers[t]; m.IsRisky && m.Matches(name) {
					risky = true
				}
			}
			res.Count++
			res.AddDetail("removed section "+name, 1, risky)
		}
	}

	if res.Count == 0 {
		return common.NewSkipped("nothing matched")
	}
	if plan.Verify {
		if err := img.CrossCheck(); err != nil {
			return common.NewFailed(errors.WithMessage(err, "verification failed, output not written"))
		}
		res.AddDetail("cross-check passed", 0, false)
	}
	if err := img.Save(outPath); err != nil {
		return common.NewFailed(err)
	}

	res.Applied = true
	res.Removed = int64(before - img.Length())
	res.Message = fmt.Sprintf("%d edits", res.Count)
	return res
}

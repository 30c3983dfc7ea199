package perw

import (
	"sort"

	"github.com/pkg/errors"
)

// DeleteSection removes the section header and raw data of the section named
// name and repairs the layout of the remaining sections.
//
// Raw pointers after the removed data move down by its size, pointers after
// the removed header slot move down by another 40 bytes, and virtual sizes
// are stretched over the freed address range according to the gap policy.
// Debug directory entries are shifted the same way. All checks run before the
// first byte changes.
func (img *Image) DeleteSection(name string) error {
	if !img.ready {
		return errors.Wrap(ErrContract, "delete section before enumerate")
	}
	idx := img.indexOf(name)
	if idx < 0 {
		return errors.Wrapf(ErrNotFound, "%q", name)
	}

	target := img.sections[idx]
	tableEnd := img.nt.SectionTableOffset() + int64(len(img.sections))*sectionHeaderSize
	rawOff, rawSize := int64(target.PointerToRawData), int64(target.SizeOfRawData)
	if rawSize > 0 {
		if !img.inBounds(rawOff, rawSize) {
			return errors.Wrapf(ErrFormat, "section raw data out of bounds: %s [0x%x,+0x%x)", name, rawOff, rawSize)
		}
		if rawOff < tableEnd {
			return errors.Wrapf(ErrFormat, "section raw data overlaps headers: %s at 0x%x", name, rawOff)
		}
	}
	slotEnd := target.HeaderOffset + sectionHeaderSize

	shift := func(ptr uint32) uint32 {
		p := ptr
		if rawSize > 0 && ptr > target.PointerToRawData {
			p -= target.SizeOfRawData
		}
		if int64(ptr) >= slotEnd {
			p -= sectionHeaderSize
		}
		return p
	}
	insideDeleted := func(ptr uint32) bool {
		return rawSize > 0 && int64(ptr) >= rawOff && int64(ptr) < rawOff+rawSize
	}

	debugFix, err := img.planDebugShift(target, shift, insideDeleted)
	if err != nil {
		return err
	}
	kind := "empty"
	if rawSize > 0 {
		kind = payloadKind(img.buf[rawOff : rawOff+rawSize])
	}

	remaining := make([]SectionDescriptor, 0, len(img.sections)-1)
	remaining = append(remaining, img.sections[:idx]...)
	remaining = append(remaining, img.sections[idx+1:]...)
	for i := range remaining {
		if remaining[i].PointerToRawData != 0 {
			remaining[i].PointerToRawData = shift(remaining[i].PointerToRawData)
		}
	}
	img.repairGap(remaining, target)

	// slots keep their pre-edit offsets until the erase below
	for _, d := range remaining {
		if err := img.writeDescriptor(d); err != nil {
			return err
		}
	}
	if err := debugFix(); err != nil {
		return err
	}
	if err := Write[uint16](img, img.nt.fileHeaderOffset()+2, uint16(len(remaining))); err != nil {
		return err
	}

	// raw data lives after the table, erase it first so rawOff stays exact
	if _, err := img.eraseRange(rawOff, rawSize); err != nil {
		return err
	}
	if _, err := img.eraseRange(target.HeaderOffset, sectionHeaderSize); err != nil {
		return err
	}

	table, err := img.readSectionTable(img.nt)
	if err != nil {
		return errors.Wrap(err, "re-read section table")
	}
	img.sections = table
	img.log.Ok("removed section %s: 0x%x header bytes, 0x%x raw bytes (%s)", name, sectionHeaderSize, rawSize, kind)
	return nil
}

// DeleteSections removes the named sections in order and stops at the first
// failure.
func (img *Image) DeleteSections(names ...string) ([]string, error) {
	deleted := make([]string, 0, len(names))
	for _, name := range names {
		if err := img.DeleteSection(name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// repairGap stretches virtual sizes over the address range the removed
// section occupied. Sections at or above its address keep their size.
func (img *Image) repairGap(remaining []SectionDescriptor, removed SectionDescriptor) {
	stretch := func(cur *SectionDescriptor, nextVA uint32) {
		if cur.VirtualAddress >= removed.VirtualAddress || nextVA <= cur.VirtualAddress {
			return
		}
		size := nextVA - cur.VirtualAddress
		if size != cur.VirtualSize {
			img.log.Info("section %s virtual size 0x%x -> 0x%x", cur.NameString(), cur.VirtualSize, size)
			cur.VirtualSize = size
		}
	}

	switch img.gapPolicy {
	case GapRepairAdjacent:
		for i := 0; i+1 < len(remaining); i++ {
			stretch(&remaining[i], remaining[i+1].VirtualAddress)
		}
	default:
		order := make([]int, len(remaining))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return remaining[order[a]].VirtualAddress < remaining[order[b]].VirtualAddress
		})
		for k := 0; k+1 < len(order); k++ {
			stretch(&remaining[order[k]], remaining[order[k+1]].VirtualAddress)
		}
	}
}

// planDebugShift computes the debug directory updates a section removal
// needs and returns a function applying them. The plan is built from the
// pre-edit layout.
func (img *Image) planDebugShift(target SectionDescriptor, shift func(uint32) uint32, insideDeleted func(uint32) bool) (func() error, error) {
	noop := func() error { return nil }

	dir, ok := img.nt.DataDirectory(debugDirectoryIndex)
	if !ok || dir.VirtualAddress == 0 || dir.Size == 0 {
		return noop, nil
	}
	if target.containsRVA(dir.VirtualAddress) {
		img.log.Warn("debug directory lived in %s, dropping the data directory entry", target.NameString())
		return func() error { return img.zeroDataDirectory(dir) }, nil
	}

	entries, err := img.DebugEntries()
	if err != nil {
		// an unreadable directory is left alone, ClearDebugDirectory reports it
		img.log.Warn("debug directory not adjusted: %v", err)
		return noop, nil
	}
	type update struct {
		off int64
		ptr uint32
	}
	var updates []update
	for _, e := range entries {
		if e.PointerToRawData == 0 {
			continue
		}
		ptr := shift(e.PointerToRawData)
		if insideDeleted(e.PointerToRawData) {
			img.log.Warn("debug %s payload lived in %s, pointer cleared", e.TypeName(), target.NameString())
			ptr = 0
		}
		if ptr != e.PointerToRawData {
			updates = append(updates, update{off: e.Offset + 24, ptr: ptr})
		}
	}
	return func() error {
		for _, u := range updates {
			if err := Write[uint32](img, u.off, u.ptr); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

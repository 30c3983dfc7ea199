package perw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearDebugDirectoryBeforeEnumerate(t *testing.T) {
	img := FromBytes(buildDebugPE64(t))
	assert.ErrorIs(t, img.ClearDebugDirectory(), ErrContract)
	_, err := img.DebugEntries()
	assert.ErrorIs(t, err, ErrContract)
}

func TestDebugEntries(t *testing.T) {
	img := prepared(t, buildDebugPE64(t))

	entries, err := img.DebugEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, uint32(DebugTypeCodeView), e.Type)
	assert.Equal(t, "CODEVIEW", e.TypeName())
	assert.Equal(t, uint32(tCodeViewOffset), e.PointerToRawData)
	assert.Equal(t, uint32(tCodeViewSize), e.SizeOfData)
	assert.Equal(t, int64(tDebugDirFileOff), e.Offset)

	cv, err := img.CodeView(e)
	require.NoError(t, err)
	assert.Equal(t, tPDBPath, cv.PDBPath)
	assert.Equal(t, tGUID, cv.GUID)
	assert.Equal(t, "0403020106050807090A0B0C0D0E0F103", cv.String())
}

func TestCodeViewRejectsOtherRecords(t *testing.T) {
	img := prepared(t, buildDebugPE64(t))

	_, err := img.CodeView(DebugDirectoryEntry{Type: DebugTypePOGO})
	assert.ErrorIs(t, err, ErrFormat)

	_, err = img.CodeView(DebugDirectoryEntry{Type: DebugTypeCodeView, SizeOfData: 0x20, PointerToRawData: 0x400})
	assert.ErrorIs(t, err, ErrFormat)

	_, err = img.CodeView(DebugDirectoryEntry{Type: DebugTypeCodeView, SizeOfData: 0x40, PointerToRawData: 0xFFFF})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestClearDebugDirectory(t *testing.T) {
	img := prepared(t, buildDebugPE64(t))
	before := img.Length()

	require.NoError(t, img.ClearDebugDirectory())
	assert.Equal(t, before, img.Length())

	buf := img.Bytes()
	assert.True(t, allBytes(buf[tCodeViewOffset:tCodeViewOffset+tCodeViewSize], 0))
	assert.True(t, allBytes(buf[tDebugDirFileOff:tDebugDirFileOff+debugEntrySize], 0))
	assert.True(t, allBytes(buf[tDebugDirEntryOffset:tDebugDirEntryOffset+dataDirectorySize], 0))
	// bytes around the payload are untouched
	assert.Equal(t, byte(0x22), buf[tCodeViewOffset-1])
	assert.Equal(t, byte(0x22), buf[tCodeViewOffset+tCodeViewSize])

	entries, err := img.DebugEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// idempotent
	snapshot := cloneBytes(img.Bytes())
	require.NoError(t, img.ClearDebugDirectory())
	assert.Equal(t, snapshot, img.Bytes())
}

func TestClearDebugDirectoryAbsent(t *testing.T) {
	img := prepared(t, buildPE64(t, standardSections()))
	want := cloneBytes(img.Bytes())

	require.NoError(t, img.ClearDebugDirectory())
	assert.Equal(t, want, img.Bytes())
}

func TestClearDebugDirectoryRvaCountTooSmall(t *testing.T) {
	data := buildDebugPE64(t)
	data[tRvaCountOffset] = 4
	img := prepared(t, data)
	want := cloneBytes(img.Bytes())

	require.NoError(t, img.ClearDebugDirectory())
	assert.Equal(t, want, img.Bytes())
}

func TestClearDebugDirectoryDegenerate(t *testing.T) {
	tests := []struct {
		name string
		rva  uint32
		size uint32
	}{
		{"size zero", tDebugDirRVA, 0},
		{"rva zero", 0, debugEntrySize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildDebugPE64(t)
			setDebugDirectory(data, tt.rva, tt.size)
			img := prepared(t, data)

			want := cloneBytes(img.Bytes())
			setDebugDirectory(want, 0, 0)

			require.NoError(t, img.ClearDebugDirectory())
			assert.Equal(t, want, img.Bytes())
		})
	}
}

func TestClearDebugDirectoryErrorsLeaveBuffer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func([]byte)
		wantErr string
	}{
		{"unmappable rva", func(b []byte) { setDebugDirectory(b, 0x9000, debugEntrySize) }, "unmappable debug rva"},
		{"payload out of bounds", func(b []byte) {
			putDebugEntry(b, tDebugDirFileOff, DebugDirectoryEntry{Type: DebugTypeCodeView, SizeOfData: 0x40, PointerToRawData: 0x9F0})
		}, "payload out of bounds"},
		{"directory out of bounds", func(b []byte) { setDebugDirectory(b, 0x3000, 0x1000) }, "debug directory out of bounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildDebugPE64(t)
			tt.mutate(data)
			img := prepared(t, data)
			want := cloneBytes(img.Bytes())

			err := img.ClearDebugDirectory()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormat)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, want, img.Bytes())
		})
	}
}

func TestClearDebugDirectoryMultipleEntries(t *testing.T) {
	data := buildDebugPE64(t)
	putDebugEntry(data, tDebugDirFileOff+debugEntrySize, DebugDirectoryEntry{
		Type:             DebugTypePOGO,
		SizeOfData:       0x20,
		AddressOfRawData: 0x2180,
		PointerToRawData: 0x780,
	})
	setDebugDirectory(data, tDebugDirRVA, 2*debugEntrySize)
	img := prepared(t, data)

	entries, err := img.DebugEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "POGO", entries[1].TypeName())

	require.NoError(t, img.ClearDebugDirectory())
	buf := img.Bytes()
	assert.True(t, allBytes(buf[tCodeViewOffset:tCodeViewOffset+tCodeViewSize], 0))
	assert.True(t, allBytes(buf[0x780:0x7A0], 0))
	assert.True(t, allBytes(buf[tDebugDirFileOff:tDebugDirFileOff+2*debugEntrySize], 0))
}

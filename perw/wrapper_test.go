package perw

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pesurgeon/common"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpen(t *testing.T) {
	img, err := Open(writeTemp(t, "app.exe", buildPE64(t, standardSections())))
	require.NoError(t, err)
	assert.Len(t, img.Sections(), 3)

	_, err = Open(writeTemp(t, "bad.exe", []byte("not a pe")))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestEditFile(t *testing.T) {
	in := writeTemp(t, "app.exe", buildDebugPE64(t))
	out := filepath.Join(filepath.Dir(in), "small.exe")

	res := EditFile(in, out, EditPlan{
		StripDebug: true,
		Presets:    []common.SectionType{common.DebugSections},
		Verify:     true,
	})
	require.NoError(t, res.Err)
	require.True(t, res.Applied, res.String())
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, int64(sectionHeaderSize+0x200), res.Removed)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(0xA00-sectionHeaderSize-0x200), info.Size())

	img, err := Open(out)
	require.NoError(t, err)
	assert.Equal(t, []string{".text", ".rdata"}, sectionNames(img.Sections()))
	entries, err := img.DebugEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// input untouched
	data, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, buildDebugPE64(t), data)
}

func TestEditFileMissingSection(t *testing.T) {
	in := writeTemp(t, "app.exe", buildPE64(t, standardSections()))
	out := filepath.Join(filepath.Dir(in), "out.exe")

	res := EditFile(in, out, EditPlan{Remove: []string{".debug", ".nope"}})
	assert.False(t, res.Applied)
	assert.ErrorIs(t, res.Err, ErrNotFound)
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestEditFileNothingToDo(t *testing.T) {
	in := writeTemp(t, "app.exe", buildPE64(t, standardSections()))

	res := EditFile(in, in, EditPlan{})
	assert.False(t, res.Applied)
	assert.NoError(t, res.Err)

	res = EditFile(in, in, EditPlan{StripDebug: true, Presets: []common.SectionType{common.SymbolSections}})
	assert.False(t, res.Applied)
	assert.NoError(t, res.Err)
	assert.Equal(t, "nothing matched", res.Message)
}

func TestDeleteSectionsDetailed(t *testing.T) {
	path := writeTemp(t, "app.exe", buildPE64(t, standardSections()))

	res := DeleteSectionsDetailed(path, []string{".nope", ".debug"})
	require.NoError(t, res.Err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, res.Count)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0xA00)-res.Removed, info.Size())

	res = DeleteSectionsDetailed(path, []string{".debug"})
	assert.False(t, res.Applied)
	assert.NoError(t, res.Err)
}

func TestClearDebugDirectoryDetailed(t *testing.T) {
	path := writeTemp(t, "app.exe", buildDebugPE64(t))

	res := ClearDebugDirectoryDetailed(path)
	require.NoError(t, res.Err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, res.Count)

	res = ClearDebugDirectoryDetailed(path)
	assert.False(t, res.Applied)
	assert.Equal(t, "no debug directory", res.Message)

	res = ClearDebugDirectoryDetailed(filepath.Join(t.TempDir(), "missing.exe"))
	assert.ErrorIs(t, res.Err, ErrIO)
}

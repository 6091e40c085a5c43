package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepflow/internal/config"
)

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("frame"), 0o644))
	}
}

func TestIsFrameFile(t *testing.T) {
	assert.True(t, IsFrameFile("light_001.fit"))
	assert.True(t, IsFrameFile("light_001.FITS"))
	assert.True(t, IsFrameFile("IMG_0001.CR2"))
	assert.True(t, IsFrameFile("capture.ser"))
	assert.False(t, IsFrameFile("notes.txt"))
	assert.False(t, IsFrameFile("preview.jpg"))
	assert.False(t, IsFrameFile("light_001"))
}

func TestListFramesSkipsDirsAndNonFrames(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "a.fit", "b.fits", "readme.md")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested.fit"), 0o755))

	frames, err := ListFrames(dir)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestScanCountsEachKind(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, filepath.Join(dir, "biases"), "bias_001.fit", "bias_002.fit")
	writeFrames(t, filepath.Join(dir, "flats"), "flat_001.fit")
	writeFrames(t, filepath.Join(dir, "lights"), "light_001.fit", "light_002.fit", "light_003.fit")

	sum, err := Scan(dir, config.Session{})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Count(Biases))
	assert.Equal(t, 1, sum.Count(Flats))
	assert.Equal(t, 0, sum.Count(Darks))
	assert.Equal(t, 3, sum.Count(Lights))
	assert.True(t, sum.Has(Lights))
	assert.False(t, sum.Has(Darks))
}

func TestScanMissingDirsAreZero(t *testing.T) {
	sum, err := Scan(t.TempDir(), config.Session{})
	require.NoError(t, err)
	for _, kind := range Kinds {
		assert.False(t, sum.Has(kind))
	}
}

func TestScanHonorsCustomDirNames(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, filepath.Join(dir, "calib", "offsets"), "bias_001.fit")

	ses := config.Session{BiasesDir: filepath.Join("calib", "offsets")}
	sum, err := Scan(dir, ses)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Count(Biases))
}

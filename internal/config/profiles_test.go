package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfileFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestListProfilesSortedByName(t *testing.T) {
	dir := t.TempDir()
	writeProfileFile(t, dir, "zz.yaml", "name: zz\n")
	writeProfileFile(t, dir, "aa.yml", "name: aa\n")
	writeProfileFile(t, dir, "notes.txt", "ignored")

	profiles, err := ListProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "aa", profiles[0].Name)
	assert.Equal(t, "zz", profiles[1].Name)
}

func TestListProfilesMissingDirIsEmpty(t *testing.T) {
	profiles, err := ListProfiles(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestLoadProfileFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	writeProfileFile(t, dir, "mono.yaml", "description: mono preset\n")

	p, err := LoadProfile(dir, "mono")
	require.NoError(t, err)
	assert.Equal(t, "mono", p.Name)
	assert.Equal(t, "mono preset", p.Description)
}

func TestLoadProfileNotFound(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "absent")
	assert.Error(t, err)
}

func TestProfileApplyNormalizes(t *testing.T) {
	dir := t.TempDir()
	writeProfileFile(t, dir, "drizzle.yaml", `
name: drizzle
stages:
  calibration:
    debayer: true
  registration:
    drizzle: true
`)

	p, err := LoadProfile(dir, "drizzle")
	require.NoError(t, err)

	cfg := Default()
	p.Apply(cfg)

	assert.True(t, cfg.Stages.Registration.Drizzle)
	assert.False(t, cfg.Stages.Calibration.Debayer)
}

func TestProfileOverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	writeProfileFile(t, dir, "median.yaml", `
name: median
stages:
  stacking:
    method: median
    rejection: none
`)

	p, err := LoadProfile(dir, "median")
	require.NoError(t, err)
	assert.Equal(t, "median", p.Stages.Stacking.Method)
	// Untouched fields keep their defaults.
	assert.Equal(t, "light", p.Stages.Convert.Basename)
}

package firmware

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPackage(t *testing.T, manifestJSON string, files map[string][]byte) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("manifest.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(manifestJSON))
	require.NoError(t, err)

	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	return path
}

func TestComponentForFlag(t *testing.T) {
	cases := map[string]string{
		"app":  "application",
		"bl":   "bootloader",
		"sd":   "softdevice",
		"sdbl": "softdevice_bootloader",
	}
	for flag, want := range cases {
		got, ok := ComponentForFlag(flag)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := ComponentForFlag("bogus")
	assert.False(t, ok)
}

func TestOpenAndComponent(t *testing.T) {
	manifestJSON := `{"manifest":{"application":{"dat_file":"app.dat","bin_file":"app.bin"}}}`
	path := writeTestPackage(t, manifestJSON, map[string][]byte{
		"app.dat": {0xAA, 0xBB},
		"app.bin": {0x01, 0x02, 0x03, 0x04},
	})

	pkg, err := Open(path)
	require.NoError(t, err)
	defer pkg.Close()

	initPacket, image, err := pkg.Component("application")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(initPacket, []byte{0xAA, 0xBB}))
	assert.True(t, bytes.Equal(image, []byte{0x01, 0x02, 0x03, 0x04}))
}

func TestComponentMissing(t *testing.T) {
	manifestJSON := `{"manifest":{"application":{"dat_file":"app.dat","bin_file":"app.bin"}}}`
	path := writeTestPackage(t, manifestJSON, map[string][]byte{
		"app.dat": {0xAA},
		"app.bin": {0x01},
	})

	pkg, err := Open(path)
	require.NoError(t, err)
	defer pkg.Close()

	_, _, err = pkg.Component("bootloader")
	assert.ErrorIs(t, err, ErrMissingComponent)
}

func TestOpenMissingManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("app.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte{0x01})
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrMissingEntry)
}

func TestOpenMalformedManifest(t *testing.T) {
	path := writeTestPackage(t, `{"manifest": "not-an-object"}`, nil)

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrMalformedManifest)
}

func TestEntryMissingFromZip(t *testing.T) {
	manifestJSON := `{"manifest":{"application":{"dat_file":"app.dat","bin_file":"missing.bin"}}}`
	path := writeTestPackage(t, manifestJSON, map[string][]byte{
		"app.dat": {0xAA},
	})

	pkg, err := Open(path)
	require.NoError(t, err)
	defer pkg.Close()

	_, _, err = pkg.Component("application")
	assert.ErrorIs(t, err, ErrMissingEntry)
}

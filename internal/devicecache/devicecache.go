// Package devicecache remembers the last BLE target (advertised name or
// address) a command was run against. The CLI commands save it after a
// successful run; they do not read it back, so the target is always given
// on the command line.
package devicecache

import (
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const (
	cacheDir  = ".nrfdfu"
	cacheFile = "lastdevice"
)

// Path returns the file the cache is stored in, resolving "~" through
// go-homedir so it also works when cross-compiled for platforms without a
// HOME environment variable. The home directory is re-detected on every
// call rather than taken from go-homedir's cache.
func Path() (string, error) {
	homedir.Reset()
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, cacheDir, cacheFile), nil
}

// Load returns the last saved target. It returns "", nil if nothing has
// been cached yet.
func Load() (string, error) {
	path, err := Path()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save records target as the last successfully-used device.
func Save(target string) error {
	path, err := Path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, []byte(target+"\n"), 0o600); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

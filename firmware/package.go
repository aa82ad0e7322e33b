// Package firmware reads Nordic DFU package archives: a zip file holding
// a manifest.json plus the .dat/.bin pairs it references.
package firmware

import (
	"archive/zip"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// componentFlags maps the short CLI verbs to the manifest key they select.
var componentFlags = map[string]string{
	"app":  "application",
	"bl":   "bootloader",
	"sd":   "softdevice",
	"sdbl": "softdevice_bootloader",
}

// ComponentForFlag resolves a CLI verb (app, bl, sd, sdbl) to the manifest
// component name it addresses.
func ComponentForFlag(flag string) (string, bool) {
	name, ok := componentFlags[flag]
	return name, ok
}

type manifestEntry struct {
	DatFile string `json:"dat_file"`
	BinFile string `json:"bin_file"`
}

type manifest struct {
	Manifest map[string]manifestEntry `json:"manifest"`
}

// Package is an opened DFU archive.
type Package struct {
	zr       *zip.ReadCloser
	manifest manifest
	entries  map[string]*zip.File
}

// Open reads path as a zip archive and parses its manifest.json. The
// archive is held open until Close is called.
func Open(path string) (*Package, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open firmware archive")
	}

	p := &Package{zr: zr, entries: make(map[string]*zip.File)}

	var manifestFile *zip.File
	for _, f := range zr.File {
		p.entries[f.Name] = f
		if f.Name == "manifest.json" {
			manifestFile = f
		}
	}

	if manifestFile == nil {
		zr.Close()
		return nil, errors.Wrap(ErrMissingEntry, "manifest.json")
	}

	if err := p.parseManifest(manifestFile); err != nil {
		zr.Close()
		return nil, err
	}

	return p, nil
}

func (p *Package) parseManifest(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrap(err, "failed to open manifest.json")
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return errors.Wrap(err, "failed to read manifest.json")
	}

	if err := json.Unmarshal(raw, &p.manifest); err != nil {
		return errors.Wrap(ErrMalformedManifest, err.Error())
	}
	if p.manifest.Manifest == nil {
		return errors.Wrap(ErrMalformedManifest, "missing \"manifest\" object")
	}

	return nil
}

// Close releases the underlying zip archive.
func (p *Package) Close() error {
	return p.zr.Close()
}

// Component returns the init packet (.dat) and firmware image (.bin) bytes
// for a named manifest component ("application", "bootloader",
// "softdevice", "softdevice_bootloader").
func (p *Package) Component(name string) (initPacket []byte, image []byte, err error) {
	entry, ok := p.manifest.Manifest[name]
	if !ok {
		return nil, nil, errors.Wrapf(ErrMissingComponent, "%q", name)
	}

	if entry.DatFile == "" || entry.BinFile == "" {
		return nil, nil, errors.Wrapf(ErrMalformedManifest, "component %q missing dat_file/bin_file", name)
	}

	initPacket, err = p.readEntry(entry.DatFile)
	if err != nil {
		return nil, nil, err
	}

	image, err = p.readEntry(entry.BinFile)
	if err != nil {
		return nil, nil, err
	}

	return initPacket, image, nil
}

func (p *Package) readEntry(name string) ([]byte, error) {
	f, ok := p.entries[name]
	if !ok {
		return nil, errors.Wrapf(ErrMissingEntry, "%q", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", name)
	}

	return data, nil
}

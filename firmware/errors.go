package firmware

import "errors"

// Sentinel errors for the package extractor, matched with errors.Is.
var (
	// ErrMissingEntry means the zip archive did not contain a file the
	// manifest referenced.
	ErrMissingEntry = errors.New("firmware: archive entry not found")

	// ErrMissingComponent means the manifest has no entry for the
	// requested component name.
	ErrMissingComponent = errors.New("firmware: component not present in manifest")

	// ErrMalformedManifest means manifest.json did not parse into the
	// expected shape.
	ErrMalformedManifest = errors.New("firmware: malformed manifest.json")
)

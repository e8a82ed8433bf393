package imaging

import (
	"path/filepath"
	"strings"
)

// MinMarker is inserted before the extension of compressed file names
const MinMarker = "min"

// MinifiedName inserts the min marker before the final extension:
// photo.png becomes photo.min.png. Names without an extension get a .min suffix.
func MinifiedName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" || base == "" {
		return name + "." + MinMarker
	}
	return base + "." + MinMarker + ext
}

// IsMinified reports whether name already carries the min marker
func IsMinified(name string) bool {
	ext := filepath.Ext(name)
	return strings.HasSuffix(strings.TrimSuffix(filepath.Base(name), ext), "."+MinMarker)
}

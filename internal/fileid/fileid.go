// Package fileid generates and inspects the opaque identifiers used to name
// downloaded artifacts inside the managed directory.
package fileid

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// New returns a fresh 32 character lowercase hex identifier.
func New() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Filename joins an identifier and an extension. The extension may be given
// with or without its leading dot; an empty extension yields the bare id.
func Filename(id, ext string) string {
	if ext == "" {
		return id
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return id + ext
}

// Base returns the portion of name before its first '.', which is the part
// that survives extension changes made during post-processing.
func Base(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// IsSafe reports whether name can be used as a single path element inside
// the managed directory.
func IsSafe(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

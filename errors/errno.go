// Package ufaterr defines the closed error taxonomy used throughout the
// block-cached FAT access layer: a small set of named conditions this
// subsystem can raise, rather than the full POSIX errno space.
package ufaterr

// Code is a stable numeric identity for an error condition. The zero value
// is Ok. Codes are assigned in enum order; Errno() gives the C-compatible
// negative return value used by the original implementation.
type Code int

const (
	Ok Code = iota
	IO
	BlockSize
	InvalidBPB
	BlockAlignment
	InvalidCluster
	NameTooLong
	NotDirectory
	NotFile

	maxCode
)

var codeStrings = [maxCode]string{
	Ok:             "No error",
	IO:             "IO error",
	BlockSize:      "Invalid block size",
	InvalidBPB:     "Invalid BPB",
	BlockAlignment: "Filesystem is not aligned for this block size",
	InvalidCluster: "Invalid cluster index",
	NameTooLong:    "Filename too long",
	NotDirectory:   "Not a directory",
	NotFile:        "Not a file",
}

// Strerror maps an error code (in either its positive or C-convention
// negative form) to a stable human-readable string. Unknown codes map to
// "Invalid error code".
func Strerror(code int) string {
	if code < 0 {
		code = -code
	}
	if code < 0 || code >= int(maxCode) {
		return "Invalid error code"
	}
	return codeStrings[code]
}

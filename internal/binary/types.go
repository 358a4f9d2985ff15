package binary

import (
	"fmt"
	"os"
	"strings"
)

// Sidecar file suffixes published next to an archive
const (
	ChecksumSuffix  = ".sha256"
	SignatureSuffix = ".asc"
)

// Format is an archive container format
type Format string

const (
	// FormatTarGz is a gzip-compressed tarball
	FormatTarGz Format = "tar.gz"
	// FormatZip is a zip archive
	FormatZip Format = "zip"
)

// String returns the string representation of the format
func (f Format) String() string {
	return string(f)
}

// Extension returns the file extension including the leading dot
func (f Format) Extension() string {
	return "." + string(f)
}

// ParseFormat parses "tar.gz", "tgz" or "zip"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "tar.gz", "tgz":
		return FormatTarGz, nil
	case "zip":
		return FormatZip, nil
	default:
		return "", fmt.Errorf("unknown archive format: %s", s)
	}
}

// FormatForPath infers the format from a file name
func FormatForPath(path string) (Format, error) {
	switch {
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(path, ".zip"):
		return FormatZip, nil
	default:
		return "", fmt.Errorf("cannot infer archive format from %s", path)
	}
}

// Entry is one file to place in an archive
type Entry struct {
	// Name is the path inside the archive
	Name string
	// Source is the file on disk
	Source string
	// Mode overrides the file mode; zero keeps the source mode
	Mode os.FileMode
}

// VerificationMethod indicates how an archive was verified
type VerificationMethod int

const (
	// VerificationNone indicates no verification
	VerificationNone VerificationMethod = iota
	// VerificationGPG indicates PGP signature verification was used
	VerificationGPG
	// VerificationSHA256 indicates SHA256 checksum verification was used
	VerificationSHA256
)

// String returns the string representation of the verification method
func (v VerificationMethod) String() string {
	switch v {
	case VerificationGPG:
		return "GPG"
	case VerificationSHA256:
		return "SHA256"
	case VerificationNone:
		return "None"
	default:
		return "Unknown"
	}
}

// VerificationResult contains the outcome of a verification attempt
type VerificationResult struct {
	Method  VerificationMethod
	Success bool
	Error   error
}

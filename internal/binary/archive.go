package binary

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Archiver creates and inspects release archives
type Archiver struct{}

// NewArchiver creates a new archiver
func NewArchiver() *Archiver {
	return &Archiver{}
}

// Create writes entries into a new archive at destPath. The archive is
// written to a temporary file and renamed into place on success.
func (a *Archiver) Create(destPath string, format Format, entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("no entries to archive")
	}
	for _, e := range entries {
		if err := checkEntryName(e.Name); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		out.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	switch format {
	case FormatTarGz:
		err = writeTarGz(out, entries)
	case FormatZip:
		err = writeZip(out, entries)
	default:
		err = fmt.Errorf("unknown archive format: %s", format)
	}
	if err != nil {
		return err
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename archive: %w", err)
	}

	cleanupNeeded = false
	return nil
}

func writeTarGz(w io.Writer, entries []Entry) error {
	gzipWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, e := range entries {
		if err := addTarEntry(tarWriter, e); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}
	return nil
}

func addTarEntry(tw *tar.Writer, e Entry) error {
	f, err := os.Open(e.Source)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Source, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.Source, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", e.Source)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", e.Source, err)
	}
	header.Name = e.Name
	if e.Mode != 0 {
		header.Mode = int64(e.Mode.Perm())
	}

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header %s: %w", e.Name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write tar entry %s: %w", e.Name, err)
	}
	return nil
}

func writeZip(w io.Writer, entries []Entry) error {
	zipWriter := zip.NewWriter(w)

	for _, e := range entries {
		if err := addZipEntry(zipWriter, e); err != nil {
			return err
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("close zip writer: %w", err)
	}
	return nil
}

func addZipEntry(zw *zip.Writer, e Entry) error {
	f, err := os.Open(e.Source)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Source, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.Source, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", e.Source)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", e.Source, err)
	}
	header.Name = e.Name
	header.Method = zip.Deflate
	if e.Mode != 0 {
		header.SetMode(e.Mode)
	}

	ew, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("write zip header %s: %w", e.Name, err)
	}
	if _, err := io.Copy(ew, f); err != nil {
		return fmt.Errorf("write zip entry %s: %w", e.Name, err)
	}
	return nil
}

// List returns the sorted names of the regular files in an archive. The
// format is inferred from the file name.
func (a *Archiver) List(archivePath string) ([]string, error) {
	format, err := FormatForPath(archivePath)
	if err != nil {
		return nil, err
	}

	var names []string
	switch format {
	case FormatTarGz:
		names, err = listTarGz(archivePath)
	case FormatZip:
		names, err = listZip(archivePath)
	}
	if err != nil {
		return nil, err
	}

	sort.Strings(names)
	return names, nil
}

func listTarGz(archivePath string) ([]string, error) {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)

	var names []string
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}
		if header.Typeflag == tar.TypeReg {
			names = append(names, header.Name)
		}
	}
	return names, nil
}

func listZip(archivePath string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if f.Mode().IsRegular() {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

// ExtractFile copies the archive member named name to destPath.
func (a *Archiver) ExtractFile(archivePath, name, destPath string) error {
	format, err := FormatForPath(archivePath)
	if err != nil {
		return err
	}

	var src io.ReadCloser
	switch format {
	case FormatTarGz:
		src, err = openTarMember(archivePath, name)
	case FormatZip:
		src, err = openZipMember(archivePath, name)
	}
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(outFile, src); err != nil {
		outFile.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return outFile.Close()
}

type tarMember struct {
	io.Reader
	closers []io.Closer
}

func (m *tarMember) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openTarMember(archivePath, name string) (io.ReadCloser, error) {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		archiveFile.Close()
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			gzipReader.Close()
			archiveFile.Close()
			return nil, fmt.Errorf("%s not found in archive", name)
		}
		if err != nil {
			gzipReader.Close()
			archiveFile.Close()
			return nil, fmt.Errorf("read tar header: %w", err)
		}
		if header.Typeflag == tar.TypeReg && header.Name == name {
			return &tarMember{Reader: tarReader, closers: []io.Closer{gzipReader, archiveFile}}, nil
		}
	}
}

type zipMember struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (m *zipMember) Close() error {
	err := m.ReadCloser.Close()
	if cerr := m.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

func openZipMember(archivePath, name string) (io.ReadCloser, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range r.File {
		if f.Name == name && f.Mode().IsRegular() {
			rc, err := f.Open()
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("open zip entry %s: %w", name, err)
			}
			return &zipMember{ReadCloser: rc, archive: r}, nil
		}
	}
	r.Close()
	return nil, fmt.Errorf("%s not found in archive", name)
}

// checkEntryName rejects absolute names and names that escape the archive
// root.
func checkEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("archive entry name is empty")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("illegal file path: %s", name)
	}
	clean := filepath.ToSlash(filepath.Clean(name))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("illegal file path: %s", name)
	}
	return nil
}

// SetExecutable sets executable permissions on a file
func SetExecutable(path string) error {
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}

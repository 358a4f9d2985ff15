package binary

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CalculateSHA256 calculates the SHA256 checksum of a file
func CalculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// WriteChecksumFile writes <file>.sha256 in sha256sum format and returns its
// path.
func WriteChecksumFile(filePath string) (string, error) {
	sum, err := CalculateSHA256(filePath)
	if err != nil {
		return "", fmt.Errorf("calculate checksum: %w", err)
	}

	checksumPath := filePath + ChecksumSuffix
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(filePath))
	if err := os.WriteFile(checksumPath, []byte(line), 0644); err != nil {
		return "", fmt.Errorf("write checksum file: %w", err)
	}
	return checksumPath, nil
}

// findChecksum finds the checksum for a specific filename in a checksum file
// Format: "abc123def456  filename.tar.gz"
func findChecksum(checksumPath, filename string) (string, error) {
	file, err := os.Open(checksumPath)
	if err != nil {
		return "", fmt.Errorf("open checksum file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}

		// sha256sum marks binary mode with a leading '*'
		checksumFilename := strings.TrimPrefix(parts[1], "*")
		if checksumFilename == filename || filepath.Base(checksumFilename) == filename {
			return parts[0], nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum file: %w", err)
	}

	return "", fmt.Errorf("checksum not found for %s", filename)
}

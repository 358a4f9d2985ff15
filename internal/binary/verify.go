package binary

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// Verifier handles cryptographic verification of archives
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier creates a verifier. A nil keyring limits verification to
// checksums.
func NewVerifier(keyring openpgp.EntityList) *Verifier {
	return &Verifier{keyring: keyring}
}

// NewVerifierFromFile loads the keyring at keyringPath. An empty path gives a
// checksum-only verifier.
func NewVerifierFromFile(keyringPath string) (*Verifier, error) {
	if keyringPath == "" {
		return NewVerifier(nil), nil
	}
	keyring, err := LoadKeyring(keyringPath)
	if err != nil {
		return nil, err
	}
	return NewVerifier(keyring), nil
}

// RequiresSignature reports whether a keyring is loaded
func (v *Verifier) RequiresSignature() bool {
	return len(v.keyring) > 0
}

// VerifyFile verifies a downloaded archive. With a keyring loaded the
// signature is required and checked first; the checksum is always checked.
// The returned method is the strongest check that passed.
func (v *Verifier) VerifyFile(archivePath, checksumPath, signaturePath string) (*VerificationResult, error) {
	method := VerificationNone

	if v.RequiresSignature() {
		if signaturePath == "" {
			return nil, fmt.Errorf("GPG signature required but not available")
		}
		result, err := v.VerifySignature(archivePath, signaturePath)
		if err != nil {
			return nil, fmt.Errorf("GPG verification failed: %w", err)
		}
		method = result.Method
	}

	if checksumPath == "" {
		if method == VerificationNone {
			return nil, fmt.Errorf("checksum file required but not available")
		}
	} else {
		result, err := v.VerifyChecksum(archivePath, checksumPath)
		if err != nil {
			return nil, fmt.Errorf("SHA256 verification failed: %w", err)
		}
		if method == VerificationNone {
			method = result.Method
		}
	}

	return &VerificationResult{Method: method, Success: true}, nil
}

// VerifySignature verifies a file against an armored or binary detached
// signature
func (v *Verifier) VerifySignature(filePath, signaturePath string) (*VerificationResult, error) {
	if !v.RequiresSignature() {
		err := fmt.Errorf("no keyring loaded")
		return &VerificationResult{Method: VerificationGPG, Error: err}, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		err = fmt.Errorf("open file: %w", err)
		return &VerificationResult{Method: VerificationGPG, Error: err}, err
	}
	defer file.Close()

	sigFile, err := os.Open(signaturePath)
	if err != nil {
		err = fmt.Errorf("open signature: %w", err)
		return &VerificationResult{Method: VerificationGPG, Error: err}, err
	}
	defer sigFile.Close()

	_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, file, sigFile, nil)
	if err != nil {
		// Try non-armored signature
		if _, serr := file.Seek(0, io.SeekStart); serr != nil {
			return &VerificationResult{Method: VerificationGPG, Error: serr}, serr
		}
		if _, serr := sigFile.Seek(0, io.SeekStart); serr != nil {
			return &VerificationResult{Method: VerificationGPG, Error: serr}, serr
		}
		_, err = openpgp.CheckDetachedSignature(v.keyring, file, sigFile, nil)
	}
	if err != nil {
		err = fmt.Errorf("verify signature: %w", err)
		return &VerificationResult{Method: VerificationGPG, Error: err}, err
	}

	return &VerificationResult{Method: VerificationGPG, Success: true}, nil
}

// VerifyChecksum verifies a file using a sha256sum-format checksum file
func (v *Verifier) VerifyChecksum(filePath, checksumPath string) (*VerificationResult, error) {
	actualChecksum, err := CalculateSHA256(filePath)
	if err != nil {
		err = fmt.Errorf("calculate checksum: %w", err)
		return &VerificationResult{Method: VerificationSHA256, Error: err}, err
	}

	expectedChecksum, err := findChecksum(checksumPath, filepath.Base(filePath))
	if err != nil {
		err = fmt.Errorf("find checksum: %w", err)
		return &VerificationResult{Method: VerificationSHA256, Error: err}, err
	}

	if !strings.EqualFold(actualChecksum, expectedChecksum) {
		err := fmt.Errorf("checksum mismatch:\nactual:   %s\nexpected: %s", actualChecksum, expectedChecksum)
		return &VerificationResult{Method: VerificationSHA256, Error: err}, err
	}

	return &VerificationResult{Method: VerificationSHA256, Success: true}, nil
}

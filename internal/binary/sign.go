package binary

import (
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// Signer writes armored detached PGP signatures
type Signer struct {
	entity *openpgp.Entity
}

// NewSigner creates a signer from an already decrypted entity
func NewSigner(entity *openpgp.Entity) (*Signer, error) {
	if entity == nil || entity.PrivateKey == nil {
		return nil, fmt.Errorf("signer requires a private key")
	}
	return &Signer{entity: entity}, nil
}

// NewSignerFromFile loads a private key from disk
func NewSignerFromFile(keyPath string, passphrase []byte) (*Signer, error) {
	entity, err := LoadSigningKey(keyPath, passphrase)
	if err != nil {
		return nil, err
	}
	return NewSigner(entity)
}

// SignFile writes <file>.asc and returns its path
func (s *Signer) SignFile(filePath string) (string, error) {
	in, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer in.Close()

	sigPath := filePath + SignatureSuffix
	out, err := os.Create(sigPath)
	if err != nil {
		return "", fmt.Errorf("create signature: %w", err)
	}

	if err := openpgp.ArmoredDetachSign(out, s.entity, in, nil); err != nil {
		out.Close()
		os.Remove(sigPath)
		return "", fmt.Errorf("sign %s: %w", filePath, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close signature: %w", err)
	}

	return sigPath, nil
}

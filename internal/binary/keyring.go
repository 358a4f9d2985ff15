package binary

import (
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// LoadKeyring reads a public keyring from disk. Armored and binary keyrings
// are both accepted.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	keyringFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		if _, serr := keyringFile.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("rewind keyring: %w", serr)
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// LoadSigningKey reads a private key and decrypts it with passphrase when it
// is protected. The first entity holding a private key is used.
func LoadSigningKey(path string, passphrase []byte) (*openpgp.Entity, error) {
	keyring, err := LoadKeyring(path)
	if err != nil {
		return nil, err
	}

	for _, entity := range keyring {
		if entity.PrivateKey == nil {
			continue
		}
		if err := decryptEntity(entity, passphrase); err != nil {
			return nil, err
		}
		return entity, nil
	}

	return nil, fmt.Errorf("no private key in %s", path)
}

func decryptEntity(entity *openpgp.Entity, passphrase []byte) error {
	if entity.PrivateKey != nil && entity.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return fmt.Errorf("signing key is encrypted but no passphrase was given")
		}
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return fmt.Errorf("decrypt signing key: %w", err)
		}
	}
	for _, sub := range entity.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
				return fmt.Errorf("decrypt signing subkey: %w", err)
			}
		}
	}
	return nil
}

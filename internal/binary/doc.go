// Package binary packages built binaries into release archives and checks
// archives fetched back from a release.
//
// # Publishing
//
// Each matrix target produces one archive holding its binaries:
//   - .tar.gz for Unix targets, .zip for Windows targets
//   - an optional <archive>.sha256 sidecar in sha256sum format
//   - an optional <archive>.asc armored PGP detached signature
//
// # Verification
//
// Downloaded archives are checked in this order:
//
// 1. PGP signature (when a keyring is configured)
//   - The .asc sidecar is required; a missing signature is an error
//   - Authenticity and integrity
//
// 2. SHA256 checksum
//   - The .sha256 sidecar must list the archive by name
//   - Integrity only
//
// # Usage
//
//	archiver := binary.NewArchiver()
//	if err := archiver.Create(dest, binary.FormatTarGz, entries); err != nil {
//	    return err
//	}
//
//	sum, err := binary.WriteChecksumFile(dest)
//	if err != nil {
//	    return err
//	}
//
// # Architecture
//
// The package is organized into several components:
//   - Archiver: tar.gz and zip creation and listing
//   - Signer: PGP detached signatures
//   - Verifier: PGP and SHA256 verification
//   - Downloader: HTTP download with retry logic
//   - Manager: fetch-and-verify of a published archive
package binary

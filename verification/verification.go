// Package verification implements the concrete OpenPGP collaborator behind
// PacmanKeySignatureCheck: checking a package's detached signature against
// a keyring. pacman-key itself is an external, opaque verifier; this
// module gives it a concrete, in-process implementation using
// ProtonMail/go-crypto, so the check stays decoupled behind the narrow
// Verifier interface while actually doing cryptographic work rather than
// shelling out to a CLI.
package verification

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/etnz/repod/rerrors"
)

// Verifier checks a package file's detached signature against a keyring.
// action.Check depends on this interface, not on this package directly,
// so alternate verifiers (e.g. a test stub) can be substituted freely.
type Verifier interface {
	Verify(packageData, signatureData []byte) error
}

// KeyringVerifier is a Verifier backed by an in-memory ASCII-armored
// OpenPGP public keyring.
type KeyringVerifier struct {
	keyring openpgp.EntityList
}

// NewKeyringVerifier loads an ASCII-armored public keyring from path.
func NewKeyringVerifier(path string) (*KeyringVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.NewFileNotFoundError(path)
		}
		return nil, rerrors.NewFileError(path, err)
	}
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		return nil, rerrors.NewFileError(path, fmt.Errorf("reading keyring: %w", err))
	}
	return &KeyringVerifier{keyring: keyring}, nil
}

// Verify checks signatureData as a detached OpenPGP signature over
// packageData, matched against the loaded keyring. It returns nil if and
// only if the signature is valid and was produced by a key in the
// keyring.
func (v *KeyringVerifier) Verify(packageData, signatureData []byte) error {
	_, err := openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(packageData), bytes.NewReader(signatureData), nil)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// NewKeyringVerifierFromArmored builds a KeyringVerifier directly from an
// ASCII-armored keyring string, for callers that already hold key material
// in memory (e.g. loaded from Settings rather than a standalone file).
func NewKeyringVerifierFromArmored(armored string) (*KeyringVerifier, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	return &KeyringVerifier{keyring: keyring}, nil
}

package verification

import (
	"bytes"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

func TestVerifyAcceptsValidSignature(t *testing.T) {
	entity, err := openpgp.NewEntity("Test Packager", "", "packager@example.com", &packet.Config{})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}

	packageData := []byte("fake package archive bytes")

	var sigBuf bytes.Buffer
	if err := openpgp.DetachSign(&sigBuf, entity, bytes.NewReader(packageData), nil); err != nil {
		t.Fatalf("DetachSign: %v", err)
	}

	v := &KeyringVerifier{keyring: openpgp.EntityList{entity}}
	if err := v.Verify(packageData, sigBuf.Bytes()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	entity, err := openpgp.NewEntity("Test Packager", "", "packager@example.com", &packet.Config{})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}

	packageData := []byte("fake package archive bytes")

	var sigBuf bytes.Buffer
	if err := openpgp.DetachSign(&sigBuf, entity, bytes.NewReader(packageData), nil); err != nil {
		t.Fatalf("DetachSign: %v", err)
	}

	v := &KeyringVerifier{keyring: openpgp.EntityList{entity}}
	if err := v.Verify([]byte("tampered bytes"), sigBuf.Bytes()); err == nil {
		t.Fatal("expected verification failure for tampered data")
	}
}

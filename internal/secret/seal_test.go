package secret

import (
	"path/filepath"
	"testing"
)

func TestSealRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "account.db.key"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	const plaintext = "correct horse battery staple"
	sealed, err := s.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if sealed == plaintext {
		t.Fatal("Seal() returned the plaintext")
	}

	got, err := s.Unseal(sealed)
	if err != nil {
		t.Fatalf("Unseal() error: %v", err)
	}
	if got != plaintext {
		t.Errorf("Unseal() = %q, want %q", got, plaintext)
	}
}

func TestSealUsesFreshNonces(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "account.db.key"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	a, err := s.Seal("same input")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	b, err := s.Seal("same input")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if a == b {
		t.Error("two seals of the same plaintext produced identical ciphertext")
	}
}

func TestKeyPersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.db.key")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	sealed, err := s1.Seal("payload")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	got, err := s2.Unseal(sealed)
	if err != nil {
		t.Fatalf("Unseal() with reloaded key error: %v", err)
	}
	if got != "payload" {
		t.Errorf("Unseal() = %q, want payload", got)
	}
}

func TestUnsealRejectsTampering(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "account.db.key"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	if _, err := s.Unseal("not base64 at all!!!"); err == nil {
		t.Error("Unseal() accepted undecodable input")
	}
	if _, err := s.Unseal("QUJD"); err == nil {
		t.Error("Unseal() accepted a too-short ciphertext")
	}

	sealed, err := s.Seal("payload")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	other, err := Open(filepath.Join(t.TempDir(), "other.key"))
	if err != nil {
		t.Fatalf("Open(other) error: %v", err)
	}
	if _, err := other.Unseal(sealed); err == nil {
		t.Error("Unseal() succeeded with the wrong key")
	}
}

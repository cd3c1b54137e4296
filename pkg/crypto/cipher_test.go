package crypto

import (
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	c, err := NewCipher("passphrase")
	if err != nil {
		t.Fatal(err)
	}
	encrypted, err := c.Encrypt("s3cret-password")
	if err != nil {
		t.Fatal(err)
	}
	if encrypted == "s3cret-password" {
		t.Fatal("ciphertext equals plaintext")
	}
	plain, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "s3cret-password" {
		t.Errorf("round-trip mismatch: %q", plain)
	}
}

func TestEmptyValuesPassThrough(t *testing.T) {
	c, _ := NewCipher("k")
	if got, err := c.Encrypt(""); err != nil || got != "" {
		t.Errorf("Encrypt empty: %q, %v", got, err)
	}
	if got, err := c.Decrypt(""); err != nil || got != "" {
		t.Errorf("Decrypt empty: %q, %v", got, err)
	}
}

func TestWrongKeyFails(t *testing.T) {
	a, _ := NewCipher("key-a")
	b, _ := NewCipher("key-b")
	encrypted, _ := a.Encrypt("value")

	_, err := b.Decrypt(encrypted)
	if !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt, got %v", err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	if _, err := NewCipher(""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestNonDeterministicNonce(t *testing.T) {
	c, _ := NewCipher("k")
	one, _ := c.Encrypt("same")
	two, _ := c.Encrypt("same")
	if one == two {
		t.Error("identical ciphertexts for repeated encryptions")
	}
}

package crypto

import (
	"bytes"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := New(testKey)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !svc.Configured() {
		t.Fatal("expected service to be configured")
	}
	plain := []byte(`{"employee":{"name":"Ada"}}`)
	sealed, err := svc.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, []byte("Ada")) {
		t.Fatal("expected ciphertext not to contain plaintext")
	}
	opened, err := svc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Fatalf("expected %q, got %q", plain, opened)
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	svc, _ := New(testKey)
	sealed, _ := svc.Encrypt([]byte("payslip"))
	sealed[len(sealed)-1] ^= 0xff
	if _, err := svc.Decrypt(sealed); err == nil {
		t.Fatal("expected tampered ciphertext to fail")
	}
	if _, err := svc.Decrypt([]byte("short")); err == nil {
		t.Fatal("expected short ciphertext to fail")
	}
}

func TestUnconfiguredPassesThrough(t *testing.T) {
	svc, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, _ := svc.Encrypt([]byte("plain"))
	if string(out) != "plain" {
		t.Fatalf("expected passthrough, got %q", out)
	}
}

func TestNewRejectsWrongKeySize(t *testing.T) {
	_, err := New("too-short")
	if err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("expected key size error, got %v", err)
	}
}

package middleware

import (
	"context"
	"testing"
)

func TestRequestHashDeterministic(t *testing.T) {
	hash1 := RequestHash([]byte("structure"), []byte("payload"))
	hash2 := RequestHash([]byte("structure"), []byte("payload"))
	hash3 := RequestHash([]byte("structure"), []byte("other"))
	hash4 := RequestHash([]byte("structurep"), []byte("ayload"))

	if hash1 != hash2 {
		t.Fatal("expected deterministic hash")
	}
	if hash1 == hash3 {
		t.Fatal("expected different hash for different payload")
	}
	if hash1 == hash4 {
		t.Fatal("expected part boundaries to matter")
	}
}

func TestNilIdempotencyStoreIsNoop(t *testing.T) {
	var store *IdempotencyStore
	stored, found, err := store.Check(context.Background(), "t1", "c1", "payslips", "key", "hash")
	if err != nil || found || stored != nil {
		t.Fatalf("expected no-op check, got %v %v %v", stored, found, err)
	}
	if err := store.Save(context.Background(), "t1", "c1", "payslips", "key", "hash", nil); err != nil {
		t.Fatalf("expected no-op save, got %v", err)
	}
}

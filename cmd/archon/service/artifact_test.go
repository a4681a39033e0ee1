package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestArtifactStoreContentDedupes(t *testing.T) {
	f := newFixture()
	svc := NewArtifactService(f.blobs, f.log)

	content := []byte(`{"nodes":[],"edges":[]}`)
	first, err := svc.StoreContent(context.Background(), content, "application/json", nil)
	if err != nil {
		t.Fatalf("StoreContent returned error: %v", err)
	}
	second, err := svc.StoreContent(context.Background(), content, "application/json", nil)
	if err != nil {
		t.Fatalf("StoreContent returned error: %v", err)
	}

	if first != second {
		t.Errorf("Expected identical content to share a CAS ID, got %s and %s", first, second)
	}
	if len(f.blobs.blobs) != 1 {
		t.Errorf("Expected 1 stored blob, got %d", len(f.blobs.blobs))
	}

	other, err := svc.StoreContent(context.Background(), []byte(`{"nodes":[{"id":"x"}]}`), "application/json", nil)
	if err != nil {
		t.Fatalf("StoreContent returned error: %v", err)
	}
	if other == first {
		t.Error("Expected different content to get a different CAS ID")
	}
	if len(f.blobs.blobs) != 2 {
		t.Errorf("Expected 2 stored blobs, got %d", len(f.blobs.blobs))
	}
}

func TestArtifactComputeHash(t *testing.T) {
	svc := NewArtifactService(newFakeArtifactStore(), testLogger())

	got := svc.ComputeHash([]byte("hello"))
	want := "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestArtifactGetContent(t *testing.T) {
	f := newFixture()
	svc := NewArtifactService(f.blobs, f.log)

	content := []byte("canonical bytes")
	casID, err := svc.StoreContent(context.Background(), content, "application/octet-stream", nil)
	if err != nil {
		t.Fatalf("StoreContent returned error: %v", err)
	}

	got, err := svc.GetContent(context.Background(), casID)
	if err != nil {
		t.Fatalf("GetContent returned error: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Expected stored content back, got %q", got)
	}

	_, err = svc.GetContent(context.Background(), "sha256:unknown")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

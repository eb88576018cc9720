package wal

import (
	"fmt"
	"os"
	"testing"
)

type guardedPayload struct {
	NextID int64
	Root   string
}

func TestMetadataGuardRoundTrip(t *testing.T) {
	path := fmt.Sprintf("/tmp/test_metaguard_%d.wal", os.Getpid())
	defer os.Remove(path)

	g, err := OpenMetadataGuard(path, nil)
	if err != nil {
		t.Fatalf("OpenMetadataGuard failed: %v", err)
	}
	defer g.Close()

	want := guardedPayload{NextID: 7, Root: "eav-root-1"}
	encoded, err := EncodeMetadata(want)
	if err != nil {
		t.Fatalf("EncodeMetadata failed: %v", err)
	}
	if err := g.Guard(encoded); err != nil {
		t.Fatalf("Guard failed: %v", err)
	}

	recovered, err := g.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	var got guardedPayload
	if err := DecodeMetadata(recovered, &got); err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if got != want {
		t.Errorf("recovered payload = %+v, want %+v", got, want)
	}
}

func TestMetadataGuardRecoverEmptyIsNil(t *testing.T) {
	path := fmt.Sprintf("/tmp/test_metaguard_empty_%d.wal", os.Getpid())
	defer os.Remove(path)

	g, err := OpenMetadataGuard(path, nil)
	if err != nil {
		t.Fatalf("OpenMetadataGuard failed: %v", err)
	}
	defer g.Close()

	recovered, err := g.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if recovered != nil {
		t.Errorf("expected nil recovered payload on empty WAL, got %v", recovered)
	}
}

func TestMetadataGuardKeepsLatestOfMultipleWrites(t *testing.T) {
	path := fmt.Sprintf("/tmp/test_metaguard_multi_%d.wal", os.Getpid())
	defer os.Remove(path)

	g, err := OpenMetadataGuard(path, nil)
	if err != nil {
		t.Fatalf("OpenMetadataGuard failed: %v", err)
	}
	defer g.Close()

	for i := int64(1); i <= 3; i++ {
		encoded, err := EncodeMetadata(guardedPayload{NextID: i, Root: fmt.Sprintf("root-%d", i)})
		if err != nil {
			t.Fatalf("EncodeMetadata failed: %v", err)
		}
		if err := g.Guard(encoded); err != nil {
			t.Fatalf("Guard failed: %v", err)
		}
	}

	recovered, err := g.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	var got guardedPayload
	if err := DecodeMetadata(recovered, &got); err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if got.NextID != 3 || got.Root != "root-3" {
		t.Errorf("expected the latest write (NextID=3, root-3), got %+v", got)
	}
}

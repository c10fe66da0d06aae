package tld

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const samplePayload = "# Version 2026083100, Last Updated Mon Aug 31 2026\nCOM\nNET\nORG\nBA\n"

func TestParseAllowList(t *testing.T) {
	names, err := ParseAllowList([]byte(samplePayload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(names) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(names))
	}
	if names[0] != "COM" {
		t.Fatalf("expected COM first, got %q", names[0])
	}
}

func TestParseAllowList_Empty(t *testing.T) {
	if _, err := ParseAllowList([]byte("# comment only\n")); err == nil {
		t.Fatalf("expected error for comment-only payload")
	}
}

func TestStore_ReplaceAndContains(t *testing.T) {
	store := NewStore()
	if store.Contains("com") {
		t.Fatalf("empty store must not contain anything")
	}

	store.Replace([]string{"COM", "net"})
	if !store.Contains("com") || !store.Contains("NET") {
		t.Fatalf("expected case-insensitive membership")
	}
	if store.Contains("xyz") {
		t.Fatalf("unexpected membership for xyz")
	}

	store.Replace([]string{"XYZ"})
	if store.Contains("com") {
		t.Fatalf("replace must drop previous entries")
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", store.Len())
	}
}

func TestSyncOnce_FetchesAndSwaps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	store := NewStore()
	syncer := NewSyncer(store, server.URL, "", time.Minute)
	if errSync := syncer.SyncOnce(context.Background()); errSync != nil {
		t.Fatalf("sync once: %v", errSync)
	}
	if !store.Contains("ba") {
		t.Fatalf("expected BA after sync")
	}
}

func TestSyncOnce_FailureKeepsSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := NewStore()
	store.Replace([]string{"COM"})
	syncer := NewSyncer(store, server.URL, "", time.Minute)
	if errSync := syncer.SyncOnce(context.Background()); errSync == nil {
		t.Fatalf("expected sync error")
	}
	if !store.Contains("COM") {
		t.Fatalf("failed sync must keep the previous snapshot")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tlds.txt")
	if err := os.WriteFile(path, []byte(samplePayload), 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	store := NewStore()
	syncer := NewSyncer(store, "http://unused.invalid", path, time.Minute)
	if errLoad := syncer.Load(context.Background()); errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if !store.Contains("org") {
		t.Fatalf("expected ORG after file load")
	}
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harmonialab/harmonia/internal/model"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore returned error: %v", err)
	}
	ctx := context.Background()
	payload := []byte("wav-payload")

	url, err := store.Put(ctx, "user-a/123.wav", payload)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("Expected file:// URL, got %q", url)
	}

	got, err := store.Get(ctx, "user-a/123.wav")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get = %q, want %q", got, payload)
	}

	if err := store.Delete(ctx, "user-a/123.wav"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, "user-a/123.wav"); !errors.Is(err, model.ErrNotFoundOrForbidden) {
		t.Errorf("Expected ErrNotFoundOrForbidden after delete, got %v", err)
	}

	// Deleting an absent key is not an error.
	if err := store.Delete(ctx, "user-a/123.wav"); err != nil {
		t.Errorf("Delete of absent key returned error: %v", err)
	}
}

func TestLocalStore_RejectsTraversalKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, key := range []string{"../escape.wav", "/abs/path.wav", "a/../../b.wav"} {
		if _, err := store.Put(ctx, key, []byte("x")); err == nil {
			t.Errorf("Put(%q) expected error, got none", key)
		}
		if _, err := store.Get(ctx, key); err == nil {
			t.Errorf("Get(%q) expected error, got none", key)
		}
	}
}

func TestAudioKey_Shape(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	key := AudioKey("user-a", ts)
	if !strings.HasPrefix(key, "user-a/") || !strings.HasSuffix(key, ".wav") {
		t.Errorf("Unexpected key shape %q", key)
	}
}

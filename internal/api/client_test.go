package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harmonialab/harmonia/internal/model"
	"github.com/harmonialab/harmonia/internal/server"
	"github.com/harmonialab/harmonia/internal/storage"
)

// newTestStack runs the reference recordings API and returns a client
// authenticated as the given user. With DevAuth the token doubles as the
// user ID.
func newTestStack(t *testing.T, user string) *Client {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(server.New(store, server.DevAuth, "0").Router())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, func() string { return user })
}

func createSample(t *testing.T, c *Client, name string) *model.Recording {
	t.Helper()
	rec, err := c.Create(context.Background(), CreateRecordingRequest{
		Name: name,
		Notes: []model.NoteEvent{
			{Note: "C4", Time: 0.5},
			{Note: "E4", Time: 1.2},
		},
		Duration: 2.0,
		Audio:    model.InlineRef([]byte("fake-wav-payload")),
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return rec
}

func TestClient_CreateAndList(t *testing.T) {
	c := newTestStack(t, "user-a")

	rec := createSample(t, c, "My Song")
	if rec.ID == "" {
		t.Error("Expected a server-assigned ID")
	}
	if rec.UserID != "user-a" {
		t.Errorf("Expected owner user-a, got %q", rec.UserID)
	}
	// Inline audio is uploaded to object storage on create.
	if !strings.HasPrefix(rec.Audio.URL(), "file://") {
		t.Errorf("Expected a storage URL for the audio, got %q", rec.Audio.URL())
	}

	recs, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != rec.ID {
		t.Errorf("Expected the created recording listed, got %v", recs)
	}
	if len(recs[0].Notes) != 2 || recs[0].Notes[1].Note != "E4" {
		t.Errorf("Note events did not survive the round trip: %v", recs[0].Notes)
	}

	raw, err := recs[0].Audio.Normalize(context.Background())
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if string(raw) != "fake-wav-payload" {
		t.Errorf("Stored audio = %q, want original payload", raw)
	}
}

func TestClient_ListOrderedNewestFirst(t *testing.T) {
	c := newTestStack(t, "user-a")
	createSample(t, c, "first")
	time.Sleep(10 * time.Millisecond)
	createSample(t, c, "second")

	recs, err := c.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Name != "second" {
		t.Errorf("Expected newest first, got %v", recs)
	}
}

func TestClient_RenameChangesOnlyName(t *testing.T) {
	c := newTestStack(t, "user-a")
	rec := createSample(t, c, "Old Name")

	renamed, err := c.Rename(context.Background(), rec.ID, "New Name")
	if err != nil {
		t.Fatalf("Rename returned error: %v", err)
	}
	if renamed.Name != "New Name" {
		t.Errorf("Expected renamed recording, got %q", renamed.Name)
	}
	if renamed.ID != rec.ID || renamed.Duration != rec.Duration || len(renamed.Notes) != len(rec.Notes) {
		t.Error("Rename must not change anything but the name")
	}

	if _, err := c.Rename(context.Background(), "nonexistent", "x"); !errors.Is(err, model.ErrNotFoundOrForbidden) {
		t.Errorf("Expected ErrNotFoundOrForbidden, got %v", err)
	}
}

func TestClient_DeleteCascadesToAudio(t *testing.T) {
	c := newTestStack(t, "user-a")
	rec := createSample(t, c, "Doomed")
	audioURL := rec.Audio.URL()

	if err := c.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	recs, err := c.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("Expected empty list after delete, got %v", recs)
	}

	// The stored payload is gone too.
	if _, err := model.RemoteRef(audioURL).Normalize(context.Background()); err == nil {
		t.Error("Expected audio payload deleted with the recording")
	}

	if err := c.Delete(context.Background(), rec.ID); !errors.Is(err, model.ErrNotFoundOrForbidden) {
		t.Errorf("Expected ErrNotFoundOrForbidden for double delete, got %v", err)
	}
}

func TestClient_OwnershipIsolation(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(server.New(store, server.DevAuth, "0").Router())
	t.Cleanup(srv.Close)

	alice := NewClient(srv.URL, 5*time.Second, func() string { return "alice" })
	mallory := NewClient(srv.URL, 5*time.Second, func() string { return "mallory" })

	rec := createSample(t, alice, "Alice Song")

	recs, err := mallory.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("Foreign recordings must not be listed, got %v", recs)
	}

	// A foreign recording is indistinguishable from a missing one.
	if _, err := mallory.Rename(context.Background(), rec.ID, "mine now"); !errors.Is(err, model.ErrNotFoundOrForbidden) {
		t.Errorf("Expected ErrNotFoundOrForbidden, got %v", err)
	}
	if err := mallory.Delete(context.Background(), rec.ID); !errors.Is(err, model.ErrNotFoundOrForbidden) {
		t.Errorf("Expected ErrNotFoundOrForbidden, got %v", err)
	}
}

func TestClient_MissingTokenIsUnauthenticated(t *testing.T) {
	c := newTestStack(t, "")
	_, err := c.List(context.Background())
	if !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
}

func TestClient_TransportFailure(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, func() string { return "user-a" })
	_, err := c.List(context.Background())
	if !errors.Is(err, model.ErrPersistenceFailure) {
		t.Errorf("Expected ErrPersistenceFailure, got %v", err)
	}
}

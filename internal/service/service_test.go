package service

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harmonialab/harmonia/internal/audio"
	"github.com/harmonialab/harmonia/internal/config"
	"github.com/harmonialab/harmonia/internal/model"
	"github.com/harmonialab/harmonia/internal/server"
	"github.com/harmonialab/harmonia/internal/session"
	"github.com/harmonialab/harmonia/internal/storage"
)

type fakeCapturer struct {
	active  bool
	payload []byte
}

func (c *fakeCapturer) Start(ctx context.Context) error {
	c.active = true
	return nil
}

func (c *fakeCapturer) Stop(ctx context.Context) ([]byte, error) {
	c.active = false
	return c.payload, nil
}

func (c *fakeCapturer) Capturing() bool { return c.active }

// newTestService wires a service against the reference recordings API with
// local storage and a fake capturer, so no audio device is touched.
func newTestService(t *testing.T) *HarmoniaService {
	t.Helper()

	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(server.New(store, server.DevAuth, "0").Router())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.Storage.Directory = t.TempDir()

	wavPayload, err := audio.EncodeWAV(make([]float64, 1024), cfg.Audio.SampleRate)
	if err != nil {
		t.Fatal(err)
	}

	svc, err := New(cfg, WithCapturer(&fakeCapturer{payload: wavPayload}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	svc.SignIn("user-a", "user-a")
	return svc
}

func TestService_RecordingLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if svc.RecordingStatus() != session.StatusIdle {
		t.Fatalf("Expected IDLE, got %s", svc.RecordingStatus())
	}
	if err := svc.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording returned error: %v", err)
	}
	if svc.RecordingStatus() != session.StatusCapturing {
		t.Fatalf("Expected CAPTURING, got %s", svc.RecordingStatus())
	}

	rec, err := svc.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording returned error: %v", err)
	}
	if rec == nil || rec.ID == "" {
		t.Fatal("Expected a persisted recording")
	}
	if svc.RecordingStatus() != session.StatusIdle {
		t.Errorf("Expected IDLE after stop, got %s", svc.RecordingStatus())
	}
	// The capture was uploaded and the recording references it.
	if !strings.HasPrefix(rec.Audio.URL(), "file://") {
		t.Errorf("Expected a storage URL, got %q", rec.Audio.URL())
	}
	if svc.LastError() != "" {
		t.Errorf("Expected clean LastError, got %q", svc.LastError())
	}

	recs, err := svc.ListRecordings(ctx)
	if err != nil {
		t.Fatalf("ListRecordings returned error: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != rec.ID {
		t.Errorf("Expected the saved recording listed, got %v", recs)
	}
}

func TestService_RenameAndDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	rec, err := svc.StopRecording(ctx)
	if err != nil {
		t.Fatal(err)
	}

	renamed, err := svc.RenameRecording(ctx, rec.ID, "Better Name")
	if err != nil {
		t.Fatalf("RenameRecording returned error: %v", err)
	}
	if renamed.Name != "Better Name" {
		t.Errorf("Expected renamed recording, got %q", renamed.Name)
	}

	if err := svc.DeleteRecording(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteRecording returned error: %v", err)
	}
	recs, err := svc.ListRecordings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("Expected no recordings after delete, got %v", recs)
	}
}

func TestService_StartRecordingUnauthenticated(t *testing.T) {
	svc := newTestService(t)
	svc.SignOut()

	err := svc.StartRecording(context.Background())
	if !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
	if svc.LastError() == "" {
		t.Error("Expected LastError set after a failed start")
	}

	// Signing back in clears the way; the next start succeeds and resets
	// the sticky error.
	svc.SignIn("user-a", "user-a")
	if err := svc.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording after sign-in returned error: %v", err)
	}
	if svc.LastError() != "" {
		t.Errorf("Expected LastError cleared, got %q", svc.LastError())
	}
}

func TestService_StopWithoutSession(t *testing.T) {
	svc := newTestService(t)
	rec, err := svc.StopRecording(context.Background())
	if err != nil {
		t.Errorf("StopRecording without a session must not error, got %v", err)
	}
	if rec != nil {
		t.Errorf("Expected nil recording, got %+v", rec)
	}
}

func TestService_ExportMIDIUnknownRecording(t *testing.T) {
	svc := newTestService(t)
	var sb strings.Builder
	err := svc.ExportMIDI(context.Background(), "nonexistent", &sb)
	if !errors.Is(err, model.ErrNotFoundOrForbidden) {
		t.Errorf("Expected ErrNotFoundOrForbidden, got %v", err)
	}
}

func TestService_IdentityCache(t *testing.T) {
	svc := newTestService(t)
	id := svc.Identity()
	if id == nil || id.UserID != "user-a" {
		t.Fatalf("Expected cached identity, got %+v", id)
	}
	svc.SignOut()
	if svc.Identity() != nil {
		t.Error("Expected no identity after sign-out")
	}
}

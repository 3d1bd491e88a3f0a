package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harmonialab/harmonia/internal/api"
	"github.com/harmonialab/harmonia/internal/config"
	"github.com/harmonialab/harmonia/internal/model"
	"github.com/harmonialab/harmonia/internal/session"
	"github.com/harmonialab/harmonia/internal/storage"
)

// recordingPersister uploads the finalized audio payload to object storage
// and then creates the recording metadata through the API, in that order.
// No step is retried; a failure anywhere surfaces to the session manager,
// which resets to idle.
type recordingPersister struct {
	client   *api.Client
	store    storage.Store
	identity func() *session.Identity
	now      func() time.Time
}

func newPersister(cfg *config.Config, client *api.Client, identity func() *session.Identity) (session.Persister, error) {
	var store storage.Store
	var err error
	switch strings.ToLower(cfg.Storage.Backend) {
	case "s3":
		store, err = storage.NewS3Store(cfg.Storage.Bucket, cfg.Storage.Region,
			time.Duration(cfg.Storage.URLTTLMinutes)*time.Minute)
	default:
		store, err = storage.NewLocalStore(cfg.Storage.Directory)
	}
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return &recordingPersister{
		client:   client,
		store:    store,
		identity: identity,
		now:      time.Now,
	}, nil
}

func (p *recordingPersister) SaveRecording(ctx context.Context, name string, notes []model.NoteEvent, duration float64, audioWAV []byte) (*model.Recording, error) {
	id := p.identity()
	if id == nil {
		return nil, model.ErrUnauthenticated
	}

	audioRef := model.AudioRef{}
	if len(audioWAV) > 0 {
		key := storage.AudioKey(id.UserID, p.now())
		url, err := p.store.Put(ctx, key, audioWAV)
		if err != nil {
			return nil, fmt.Errorf("upload audio: %w", err)
		}
		audioRef = model.RemoteRef(url)
	}

	rec, err := p.client.Create(ctx, api.CreateRecordingRequest{
		Name:     name,
		Notes:    notes,
		Duration: duration,
		Audio:    audioRef,
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

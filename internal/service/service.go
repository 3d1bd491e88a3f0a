// Package service wires the core together and owns all process-wide state:
// the one recording session, the one playback timeline, the cached identity
// and the recordings cache. UI surfaces (CLI, HTTP) go through its narrow
// API instead of mutating shared state directly.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/harmonialab/harmonia/internal/analysis"
	"github.com/harmonialab/harmonia/internal/api"
	"github.com/harmonialab/harmonia/internal/audio"
	"github.com/harmonialab/harmonia/internal/config"
	"github.com/harmonialab/harmonia/internal/midiexport"
	"github.com/harmonialab/harmonia/internal/model"
	"github.com/harmonialab/harmonia/internal/playback"
	"github.com/harmonialab/harmonia/internal/session"
	"github.com/harmonialab/harmonia/internal/synth"
)

// Service is the application facade.
type Service interface {
	// Note and recording operations
	TriggerNote(note string) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (*model.Recording, error)
	RecordingStatus() session.Status

	// Playback operations
	PlayRecording(ctx context.Context, id string) error
	PlayNotes(notes []model.NoteEvent)
	PlayAudio(raw []byte) error
	Playing() bool
	StopPlayback()
	Roll() *playback.Roll

	// Analysis
	Analyze(ctx context.Context, raw []byte) (model.AnalysisResult, error)

	// Recordings collection
	ListRecordings(ctx context.Context) ([]model.Recording, error)
	RenameRecording(ctx context.Context, id, name string) (*model.Recording, error)
	DeleteRecording(ctx context.Context, id string) error
	ExportMIDI(ctx context.Context, id string, w io.Writer) error

	// Identity
	SignIn(userID, token string)
	SignOut()
	Identity() *session.Identity

	// Diagnostics
	LastError() string
}

// HarmoniaService is the default Service implementation.
type HarmoniaService struct {
	cfg       *config.Config
	synth     *synth.Synthesizer
	sess      *session.Manager
	engine    *playback.Engine
	roll      *playback.Roll
	analyzer  *analysis.Analyzer
	client    *api.Client
	output    *playback.SpeakerOutput
	capturer  audio.Capturer
	persister session.Persister

	identityMu sync.RWMutex
	identity   *session.Identity

	cacheMu sync.RWMutex
	cache   map[string]model.Recording

	lastErrorMu sync.RWMutex
	lastError   string

	audioOnce sync.Once
	audioErr  error
}

// Option overrides a collaborator, mainly for tests.
type Option func(*HarmoniaService)

func WithCapturer(c audio.Capturer) Option {
	return func(s *HarmoniaService) {
		s.capturer = c
		s.rebuildSession()
	}
}

func WithPersister(p session.Persister) Option {
	return func(s *HarmoniaService) {
		s.persister = p
		s.rebuildSession()
	}
}

func (s *HarmoniaService) rebuildSession() {
	s.sess = session.New(s.capturer, s.persister, s.Identity)
	s.synth.SetSink(s.sess)
}

// New builds the service from configuration.
func New(cfg *config.Config, opts ...Option) (*HarmoniaService, error) {
	s := &HarmoniaService{
		cfg:      cfg,
		cache:    make(map[string]model.Recording),
		analyzer: analysis.New(),
		output:   playback.NewSpeakerOutput(),
	}

	s.synth = synth.New(cfg)
	s.client = api.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.TimeoutSeconds)*time.Second, s.token)
	s.capturer = audio.NewCapturer(cfg, s.synth.Output())

	persister, err := newPersister(cfg, s.client, s.Identity)
	if err != nil {
		return nil, err
	}
	s.persister = persister
	s.sess = session.New(s.capturer, persister, s.Identity)
	s.engine = playback.NewEngine(s.synth, s.output)
	s.roll = playback.NewRoll(s.engine, nil, cfg.Roll.Columns, cfg.Roll.BPM)

	// A roll that runs off its end while a session is capturing stops the
	// recording, matching the record-while-playing flow.
	s.roll.OnFinish(func() {
		if s.sess.Status() == session.StatusCapturing {
			if _, err := s.StopRecording(context.Background()); err != nil {
				slog.Error("auto-stop after roll playback failed", "error", err)
			}
		}
	})

	s.synth.SetSink(s.sess)

	if cfg.API.Token != "" {
		s.SignIn(cfg.API.UserID, cfg.API.Token)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *HarmoniaService) token() string {
	if id := s.Identity(); id != nil {
		return id.Token
	}
	return ""
}

// ensureAudio attaches the synth bus (through the loopback tap, when that
// backend is active) to the output device. Deferred until a note or
// playback actually needs audible output so headless use never touches the
// device.
func (s *HarmoniaService) ensureAudio() error {
	s.audioOnce.Do(func() {
		src := s.synth.Output()
		if tap, ok := s.capturer.(*audio.LoopbackCapturer); ok {
			src = tap
		}
		s.audioErr = s.output.Run(src, beep.SampleRate(s.cfg.Audio.SampleRate))
		if s.audioErr != nil {
			s.audioErr = fmt.Errorf("%w: %v", model.ErrDeviceUnavailable, s.audioErr)
		}
	})
	return s.audioErr
}

func (s *HarmoniaService) TriggerNote(note string) error {
	if err := s.ensureAudio(); err != nil {
		s.setLastError(err.Error())
		return err
	}
	return s.synth.Trigger(note)
}

func (s *HarmoniaService) StartRecording(ctx context.Context) error {
	s.clearLastError()
	if _, ok := s.capturer.(*audio.LoopbackCapturer); ok {
		if err := s.ensureAudio(); err != nil {
			s.setLastError(err.Error())
			return err
		}
	}
	err := s.sess.Start(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("failed to start recording: %v", err))
	}
	return err
}

func (s *HarmoniaService) StopRecording(ctx context.Context) (*model.Recording, error) {
	rec, err := s.sess.Stop(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("failed to save recording: %v", err))
		return nil, err
	}
	s.clearLastError()
	if rec != nil {
		s.cacheMu.Lock()
		s.cache[rec.ID] = *rec
		s.cacheMu.Unlock()
	}
	return rec, nil
}

func (s *HarmoniaService) RecordingStatus() session.Status {
	return s.sess.Status()
}

func (s *HarmoniaService) PlayRecording(ctx context.Context, id string) error {
	rec, err := s.recording(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Audio.IsZero() {
		if err := s.ensureAudio(); err != nil {
			s.setLastError(err.Error())
			return err
		}
	}
	return s.engine.PlayRecording(ctx, rec)
}

func (s *HarmoniaService) PlayNotes(notes []model.NoteEvent) {
	if err := s.ensureAudio(); err != nil {
		s.setLastError(err.Error())
		return
	}
	s.engine.PlayNotes(notes)
}

func (s *HarmoniaService) PlayAudio(raw []byte) error {
	if err := s.ensureAudio(); err != nil {
		s.setLastError(err.Error())
		return err
	}
	return s.engine.PlayAudio(raw)
}

func (s *HarmoniaService) Playing() bool {
	return s.engine.Playing()
}

func (s *HarmoniaService) StopPlayback() {
	s.roll.Stop()
	s.engine.Stop()
}

func (s *HarmoniaService) Roll() *playback.Roll {
	return s.roll
}

func (s *HarmoniaService) Analyze(ctx context.Context, raw []byte) (model.AnalysisResult, error) {
	return s.analyzer.Analyze(ctx, raw)
}

func (s *HarmoniaService) ListRecordings(ctx context.Context) ([]model.Recording, error) {
	recs, err := s.client.List(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("failed to load recordings: %v", err))
		return nil, err
	}
	s.cacheMu.Lock()
	s.cache = make(map[string]model.Recording, len(recs))
	for _, r := range recs {
		s.cache[r.ID] = r
	}
	s.cacheMu.Unlock()
	return recs, nil
}

func (s *HarmoniaService) RenameRecording(ctx context.Context, id, name string) (*model.Recording, error) {
	rec, err := s.client.Rename(ctx, id, name)
	if err != nil {
		s.setLastError(fmt.Sprintf("failed to rename recording: %v", err))
		return nil, err
	}
	s.cacheMu.Lock()
	s.cache[rec.ID] = *rec
	s.cacheMu.Unlock()
	return rec, nil
}

func (s *HarmoniaService) DeleteRecording(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, id); err != nil {
		s.setLastError(fmt.Sprintf("failed to delete recording: %v", err))
		return err
	}
	s.cacheMu.Lock()
	delete(s.cache, id)
	s.cacheMu.Unlock()
	return nil
}

func (s *HarmoniaService) ExportMIDI(ctx context.Context, id string, w io.Writer) error {
	rec, err := s.recording(ctx, id)
	if err != nil {
		return err
	}
	return midiexport.Write(w, rec)
}

// recording resolves an ID from the cache, refreshing from the API on a
// miss.
func (s *HarmoniaService) recording(ctx context.Context, id string) (*model.Recording, error) {
	s.cacheMu.RLock()
	rec, ok := s.cache[id]
	s.cacheMu.RUnlock()
	if ok {
		return &rec, nil
	}
	if _, err := s.ListRecordings(ctx); err != nil {
		return nil, err
	}
	s.cacheMu.RLock()
	rec, ok = s.cache[id]
	s.cacheMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("recording %s: %w", id, model.ErrNotFoundOrForbidden)
	}
	return &rec, nil
}

func (s *HarmoniaService) SignIn(userID, token string) {
	s.identityMu.Lock()
	defer s.identityMu.Unlock()
	s.identity = &session.Identity{UserID: userID, Token: token}
}

func (s *HarmoniaService) SignOut() {
	s.identityMu.Lock()
	defer s.identityMu.Unlock()
	s.identity = nil
}

func (s *HarmoniaService) Identity() *session.Identity {
	s.identityMu.RLock()
	defer s.identityMu.RUnlock()
	return s.identity
}

func (s *HarmoniaService) LastError() string {
	s.lastErrorMu.RLock()
	defer s.lastErrorMu.RUnlock()
	return s.lastError
}

func (s *HarmoniaService) setLastError(msg string) {
	s.lastErrorMu.Lock()
	defer s.lastErrorMu.Unlock()
	s.lastError = msg
}

func (s *HarmoniaService) clearLastError() {
	s.setLastError("")
}

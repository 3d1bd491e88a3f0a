// Package server is a reference implementation of the recordings
// persistence API the client talks to. It keeps recording metadata in
// memory and audio payloads in a storage.Store, which is enough for the
// serve command and for exercising the client end to end.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/harmonialab/harmonia/internal/model"
	"github.com/harmonialab/harmonia/internal/storage"
)

// AuthFunc resolves a bearer token to a user ID. The reference resolver
// treats any non-empty token as the user's ID; real deployments plug in a
// verifier.
type AuthFunc func(token string) (userID string, ok bool)

// DevAuth is the permissive development resolver.
func DevAuth(token string) (string, bool) {
	return token, token != ""
}

type storedRecording struct {
	rec model.Recording
	key string // storage key of the audio payload, "" if none
}

// Server serves the recordings CRUD API.
type Server struct {
	mu         sync.RWMutex
	recordings map[string]*storedRecording
	store      storage.Store
	auth       AuthFunc
	port       string
	now        func() time.Time
}

func New(store storage.Store, auth AuthFunc, port string) *Server {
	if auth == nil {
		auth = DevAuth
	}
	return &Server{
		recordings: make(map[string]*storedRecording),
		store:      store,
		auth:       auth,
		port:       port,
		now:        time.Now,
	}
}

// Router builds the HTTP handler, CORS-wrapped for browser callers.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/recordings", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/recordings", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/recordings/{id}", s.handleRename).Methods(http.MethodPatch)
	r.HandleFunc("/api/recordings/{id}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/api/recordings/{id}/audio", s.handleAudio).Methods(http.MethodGet)
	return cors.AllowAll().Handler(r)
}

// Start runs the server. It blocks.
func (s *Server) Start() error {
	slog.Info("recordings API listening", "port", s.port)
	return http.ListenAndServe(":"+s.port, s.Router())
}

func (s *Server) user(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	return s.auth(strings.TrimPrefix(h, "Bearer "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRecordingRequest struct {
	Name     string            `json:"name"`
	Notes    []model.NoteEvent `json:"notes"`
	Duration float64           `json:"duration"`
	Audio    model.AudioRef    `json:"audio"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	created := s.now()
	rec := model.Recording{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      req.Name,
		Notes:     req.Notes,
		Duration:  req.Duration,
		CreatedAt: created,
	}

	var key string
	if !req.Audio.IsZero() {
		if url := req.Audio.URL(); url != "" {
			// Already uploaded to object storage by the client.
			rec.Audio = model.RemoteRef(url)
		} else {
			raw, err := req.Audio.Normalize(r.Context())
			if err != nil {
				writeError(w, http.StatusBadRequest, "malformed audio payload")
				return
			}
			key = storage.AudioKey(userID, created)
			url, err := s.store.Put(r.Context(), key, raw)
			if err != nil {
				slog.Error("audio upload failed", "key", key, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to store audio")
				return
			}
			rec.Audio = model.RemoteRef(url)
		}
	}

	s.mu.Lock()
	s.recordings[rec.ID] = &storedRecording{rec: rec, key: key}
	s.mu.Unlock()

	slog.Info("recording created", "id", rec.ID, "user", userID, "notes", len(rec.Notes))
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s.mu.RLock()
	recs := make([]model.Recording, 0)
	for _, sr := range s.recordings {
		if sr.rec.UserID == userID {
			recs = append(recs, sr.rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, recs)
}

// owned looks up a recording and enforces ownership. Absent and foreign
// recordings are indistinguishable to the caller.
func (s *Server) owned(id, userID string) (*storedRecording, bool) {
	sr, ok := s.recordings[id]
	if !ok || sr.rec.UserID != userID {
		return nil, false
	}
	return sr, true
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	sr, ok := s.owned(id, userID)
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "recording not found")
		return
	}
	sr.rec.Name = req.Name
	rec := sr.rec
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	sr, ok := s.owned(id, userID)
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "recording not found")
		return
	}
	delete(s.recordings, id)
	key := sr.key
	s.mu.Unlock()

	// Deleting a recording cascades to its stored audio payload.
	if key != "" {
		if err := s.store.Delete(r.Context(), key); err != nil {
			slog.Error("audio cascade delete failed", "key", key, "error", err)
		}
	}
	slog.Info("recording deleted", "id", id, "user", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	s.mu.RLock()
	sr, ok := s.owned(id, userID)
	var key string
	if ok {
		key = sr.key
	}
	s.mu.RUnlock()

	if !ok || key == "" {
		writeError(w, http.StatusNotFound, "audio not found")
		return
	}

	data, err := s.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, model.ErrNotFoundOrForbidden) {
			writeError(w, http.StatusNotFound, "audio not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read audio")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".wav"))
	w.Write(data)
}

// Reset drops all recordings. Tests use it between cases.
func (s *Server) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sr := range s.recordings {
		if sr.key != "" {
			s.store.Delete(ctx, sr.key)
		}
		delete(s.recordings, id)
	}
}

package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const dataURIPrefix = "data:audio/wav;base64,"

// AudioRef is a tagged reference to a recording's audio payload. Exactly one
// representation is authoritative: an inline byte buffer or a remote URL.
// The zero value means the recording carries no audio.
type AudioRef struct {
	inline []byte
	remote string
}

// InlineRef wraps raw encoded audio bytes.
func InlineRef(data []byte) AudioRef {
	return AudioRef{inline: data}
}

// RemoteRef wraps a fetchable URL (http, https or file scheme).
func RemoteRef(url string) AudioRef {
	return AudioRef{remote: url}
}

func (r AudioRef) IsZero() bool {
	return len(r.inline) == 0 && r.remote == ""
}

// URL returns the remote location, or "" for inline and zero refs.
func (r AudioRef) URL() string {
	return r.remote
}

// Normalize resolves the reference to raw encoded bytes: inline buffers are
// returned as-is, remote URLs are fetched. Consumers always go through this
// before decoding or analyzing.
func (r AudioRef) Normalize(ctx context.Context) ([]byte, error) {
	switch {
	case len(r.inline) > 0:
		out := make([]byte, len(r.inline))
		copy(out, r.inline)
		return out, nil
	case strings.HasPrefix(r.remote, "file://"):
		data, err := os.ReadFile(strings.TrimPrefix(r.remote, "file://"))
		if err != nil {
			return nil, fmt.Errorf("read audio file: %w", err)
		}
		return data, nil
	case r.remote != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.remote, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch audio: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch audio: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch audio: %w: status %d", ErrPersistenceFailure, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	default:
		return nil, fmt.Errorf("recording has no audio payload")
	}
}

// MarshalJSON emits inline audio as a base64 data URI and remote audio as a
// plain URL string, matching the wire shapes the recordings API accepts.
func (r AudioRef) MarshalJSON() ([]byte, error) {
	switch {
	case len(r.inline) > 0:
		return json.Marshal(dataURIPrefix + base64.StdEncoding.EncodeToString(r.inline))
	case r.remote != "":
		return json.Marshal(r.remote)
	default:
		return json.Marshal("")
	}
}

func (r *AudioRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch {
	case s == "":
		*r = AudioRef{}
	case strings.HasPrefix(s, "data:"):
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return fmt.Errorf("malformed audio data URI")
		}
		raw, err := base64.StdEncoding.DecodeString(s[idx+1:])
		if err != nil {
			return fmt.Errorf("decode audio base64: %w", err)
		}
		*r = AudioRef{inline: raw}
	default:
		*r = AudioRef{remote: s}
	}
	return nil
}

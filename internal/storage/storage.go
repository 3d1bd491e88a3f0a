// Package storage holds audio payloads for recordings, keyed by
// "{userID}/{timestamp}.wav" style paths, and hands back fetchable URLs.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Store is the object-storage collaborator boundary.
type Store interface {
	// Put writes the payload and returns a URL it can later be fetched from.
	Put(ctx context.Context, key string, data []byte) (url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// AudioKey builds the storage key for a user's capture finalized at ts.
func AudioKey(userID string, ts time.Time) string {
	return fmt.Sprintf("%s/%d.wav", userID, ts.UnixMilli())
}

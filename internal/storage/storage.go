// Package storage archives JSON documents (generation transcripts) to the
// local filesystem or S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Load when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Store saves and loads JSON documents by key.
type Store interface {
	Save(ctx context.Context, key string, v any) error
	Load(ctx context.Context, key string, v any) error
}

// Options selects and configures a backend.
type Options struct {
	Type      string // local, s3 or none
	LocalPath string
	Bucket    string
	Region    string
	Prefix    string
}

// New builds the configured store. An empty or "none" type yields a Nop store.
func New(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Type) {
	case "", "none":
		return Nop{}, nil
	case "local":
		return NewLocal(opts.LocalPath)
	case "s3":
		return NewS3(ctx, opts.Bucket, opts.Region, opts.Prefix)
	}
	return nil, fmt.Errorf("storage: unknown type %q", opts.Type)
}

// TranscriptKey is the archive key for a generation made for triggerID at t.
func TranscriptKey(t time.Time, triggerID int64) string {
	return fmt.Sprintf("generations/%s/trigger-%d.json", t.UTC().Format("2006/01/02"), triggerID)
}

// Nop discards saves and finds nothing.
type Nop struct{}

func (Nop) Save(context.Context, string, any) error { return nil }
func (Nop) Load(context.Context, string, any) error { return ErrNotFound }

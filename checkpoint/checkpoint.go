// Package checkpoint saves and loads progress for resumable batch/paginator
// runs: parallel-scan segment state and the byte offset into a batch load
// source, so a bench or loadgen run can pick back up after a crash instead
// of starting over.
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"

	"github.com/gurre/ddb-dam/awsx"
	"github.com/gurre/ddb-dam/paginate"
)

// State is the resumable snapshot of one run. ScanState is populated by
// parallel-scan consumers; SourceOffset is populated by batch-load
// consumers streaming a flat file into batch.Engine. A given run only
// ever populates one of the two.
//
// Example:
//
//	store, err := checkpoint.NewS3Store(client, "s3://my-bucket/checkpoints/run-123.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	state, err := store.Load(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("resuming load at byte %d\n", state.SourceOffset)
type State struct {
	RunID        string                     `json:"runId"`
	ScanState    paginate.ParallelScanState `json:"scanState,omitempty"`
	SourceFile   string                     `json:"sourceFile,omitempty"`
	SourceOffset int64                      `json:"sourceOffset"`
}

// Store defines the contract for saving and loading checkpoint state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// S3Store implements Store using AWS S3.
type S3Store struct {
	client awsx.S3Client
	bucket string
	key    string
}

// NewS3Store creates an S3Store from an S3 URI.
func NewS3Store(client awsx.S3Client, uri string) (*S3Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid S3 URI scheme: %s", u.Scheme)
	}

	return &S3Store{
		client: client,
		bucket: u.Host,
		key:    strings.TrimPrefix(u.Path, "/"),
	}, nil
}

// Load returns an empty State if no checkpoint object exists yet.
func (s *S3Store) Load(ctx context.Context) (State, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return State{}, nil
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return state, nil
}

// Save overwrites the checkpoint object with state.
func (s *S3Store) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// FileStore implements Store using the local filesystem, for single-box
// loadgen/bench runs.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore from a file URI. The path must be
// absolute; it is cleaned to resolve any .. or . components.
func NewFileStore(uri string) (*FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("invalid file URI scheme: %s", u.Scheme)
	}

	cleanPath := filepath.Clean(u.Path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("checkpoint path must be absolute: %s", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &FileStore{path: cleanPath}, nil
}

// Load returns an empty State if the checkpoint file does not exist yet.
func (f *FileStore) Load(ctx context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return state, nil
}

// Save overwrites the checkpoint file with state.
func (f *FileStore) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	return nil
}

// Package resumes keeps uploaded resume files in the key-value service under "resume:<id>" keys
package resumes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/jobtrack/app/kv"
)

// MaxSize is the largest accepted resume file
const MaxSize = 5 << 20

const (
	keyPrefix   = "resume:"
	listPattern = keyPrefix + "*"
)

// ErrTooLarge returned for files over MaxSize
var ErrTooLarge = errors.New("resume file too large")

// ErrEmpty returned for zero-length files
var ErrEmpty = errors.New("resume file is empty")

// Resume is an uploaded file with metadata
type Resume struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Data        []byte    `json:"data,omitempty"`
}

// Store keeps resumes in the key-value service
type Store struct {
	kv  kv.Store
	now func() time.Time
}

// New makes resume store
func New(store kv.Store) *Store {
	return &Store{kv: store, now: func() time.Time { return time.Now().UTC() }}
}

// Save stores a new resume and returns it without data
func (s *Store) Save(ctx context.Context, fileName, contentType string, data []byte) (Resume, error) {
	if len(data) == 0 {
		return Resume{}, ErrEmpty
	}
	if len(data) > MaxSize {
		return Resume{}, ErrTooLarge
	}
	u, err := uuid.NewV7()
	if err != nil {
		return Resume{}, fmt.Errorf("failed to make resume id: %w", err)
	}
	r := Resume{ID: "resume_" + u.String(), FileName: fileName, ContentType: contentType,
		Size: len(data), UploadedAt: s.now(), Data: data}

	body, err := json.Marshal(r)
	if err != nil {
		return Resume{}, fmt.Errorf("failed to marshal resume: %w", err)
	}
	if err := s.kv.Set(ctx, keyPrefix+r.ID, string(body)); err != nil {
		return Resume{}, fmt.Errorf("failed to save resume %s: %w", fileName, err)
	}
	r.Data = nil
	return r, nil
}

// List returns all resumes without data, newest first. Malformed entries logged and skipped.
func (s *Store) List(ctx context.Context) ([]Resume, error) {
	items, err := s.kv.List(ctx, listPattern, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list resumes: %w", err)
	}
	res := make([]Resume, 0, len(items))
	for _, item := range items {
		var r Resume
		if err := json.Unmarshal([]byte(item.Value), &r); err != nil {
			log.Printf("[WARN] skip malformed resume %s, %v", item.Key, err)
			continue
		}
		r.Data = nil
		res = append(res, r)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].UploadedAt.After(res[j].UploadedAt) })
	return res, nil
}

// Get returns resume with data
func (s *Store) Get(ctx context.Context, id string) (Resume, error) {
	v, err := s.kv.Get(ctx, keyPrefix+id)
	if err != nil {
		return Resume{}, fmt.Errorf("failed to get resume %s: %w", id, err)
	}
	var r Resume
	if err := json.Unmarshal([]byte(v), &r); err != nil {
		return Resume{}, fmt.Errorf("failed to parse resume %s: %w", id, err)
	}
	return r, nil
}

// Delete removes resume
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("failed to delete resume %s: %w", id, err)
	}
	return nil
}

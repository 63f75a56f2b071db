// Package jobs implements the job application store. Store keeps an in-memory list of applications
// synchronized with a remote key-value service, every record kept as a JSON document under
// "job:<id>". Mutations go to the key-value service first and touch the in-memory list only on
// success, so a failed operation never leaves the list out of sync.
//
// Store state is guarded for memory safety only. The lock is never held across a key-value call,
// so overlapping operations are not serialized and race on the list with last-write-wins semantics.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobtrack/app/kv"
)

// ChangeKind of a successful mutation
type ChangeKind string

// change kinds
const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change describes a successful mutation, Previous set for updates and deletes of known jobs
type Change struct {
	Kind     ChangeKind
	Job      Application
	Previous *Application
}

// Observer gets notified after each successful add, update and delete
type Observer interface {
	OnChange(ctx context.Context, ch Change)
}

// Option customizes Store
type Option func(*Store)

// WithObserver sets observer for successful mutations
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock sets time source, used in tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets job id generator, used in tests
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store is the job application store backed by a key-value service
type Store struct {
	kv       kv.Store
	observer Observer
	now      func() time.Time
	newID    func() string

	mu       sync.RWMutex
	jobs     []Application
	inflight int
	err      error
}

// New makes an empty store on top of the key-value service. Call Load to fetch existing jobs.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:    store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: NewID,
		jobs:  []Application{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Jobs returns a copy of the in-memory list
func (s *Store) Jobs() []Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Application, len(s.jobs))
	copy(res, s.jobs)
	return res
}

// Get returns the in-memory job by id
func (s *Store) Get(id string) (Application, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.jobs[idx], true
	}
	return Application{}, false
}

// Loading reports whether any operation is in flight
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

// Err returns the error recorded by the last failed operation, nil if none or cleared
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// ClearError resets the recorded error
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// Load fetches all jobs from the key-value service and replaces the in-memory list,
// sorted by date applied, newest first. On failure the list is left as is.
func (s *Store) Load(ctx context.Context) error {
	s.begin()

	items, err := s.kv.List(ctx, ListPattern, true)
	if err != nil {
		return s.fail(&Error{Kind: KindStorage, Op: "load", Err: err})
	}

	list := make([]Application, 0, len(items))
	for _, item := range items {
		var job Application
		if err := json.Unmarshal([]byte(item.Value), &job); err != nil {
			return s.fail(&Error{Kind: KindParse, Op: "load", Key: item.Key, Err: err})
		}
		list = append(list, job)
	}
	sortByDateApplied(list)

	s.mu.Lock()
	s.jobs = list
	s.mu.Unlock()
	s.end()
	log.Printf("[DEBUG] loaded %d jobs", len(list))
	return nil
}

// Add creates a new job from data, stores it and prepends to the in-memory list
func (s *Store) Add(ctx context.Context, data FormData) (Application, error) {
	s.begin()

	now := s.now()
	job := Application{ID: s.newID(), FormData: normalize(data), CreatedAt: now, UpdatedAt: now}
	if err := s.put(ctx, "add", job); err != nil {
		return Application{}, s.fail(err)
	}

	s.mu.Lock()
	s.jobs = append([]Application{job}, s.jobs...)
	s.mu.Unlock()
	s.end()

	log.Printf("[INFO] added job %s, %s", job.ID, job.Company)
	s.notify(ctx, Change{Kind: ChangeAdded, Job: job})
	return job, nil
}

// Update replaces form fields of the existing job, bumps UpdatedAt and stores it.
// Fails with ErrNotFound if the job is not in the in-memory list.
func (s *Store) Update(ctx context.Context, id string, data FormData) (Application, error) {
	s.begin()

	existing, ok := s.Get(id)
	if !ok {
		return Application{}, s.fail(&Error{Kind: KindNotFound, Op: "update", Key: id})
	}

	updatedAt := s.now()
	if !updatedAt.After(existing.UpdatedAt) {
		// coarse or skewed clock, keep updatedAt strictly increasing
		updatedAt = existing.UpdatedAt.Add(time.Millisecond)
	}
	job := existing
	job.FormData = normalize(data)
	job.UpdatedAt = updatedAt
	if err := s.put(ctx, "update", job); err != nil {
		return Application{}, s.fail(err)
	}

	s.mu.Lock()
	if idx := s.indexOf(id); idx >= 0 {
		s.jobs[idx] = job
	}
	s.mu.Unlock()
	s.end()

	log.Printf("[INFO] updated job %s, %s", job.ID, job.Company)
	s.notify(ctx, Change{Kind: ChangeUpdated, Job: job, Previous: &existing})
	return job, nil
}

// Delete removes the job from the key-value service and from the in-memory list
func (s *Store) Delete(ctx context.Context, id string) error {
	s.begin()

	if err := s.kv.Delete(ctx, Key(id)); err != nil {
		return s.fail(&Error{Kind: KindStorage, Op: "delete", Key: id, Err: err})
	}

	s.mu.Lock()
	var removed *Application
	filtered := make([]Application, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.ID == id {
			removed = &job
			continue
		}
		filtered = append(filtered, job)
	}
	s.jobs = filtered
	s.mu.Unlock()
	s.end()

	log.Printf("[INFO] deleted job %s", id)
	if removed != nil {
		s.notify(ctx, Change{Kind: ChangeDeleted, Job: *removed, Previous: removed})
	}
	return nil
}

func (s *Store) put(ctx context.Context, op string, job Application) error {
	data, err := json.Marshal(job)
	if err != nil {
		return &Error{Kind: KindParse, Op: op, Key: job.ID, Err: err}
	}
	if err := s.kv.Set(ctx, Key(job.ID), string(data)); err != nil {
		return &Error{Kind: KindStorage, Op: op, Key: job.ID, Err: err}
	}
	return nil
}

// begin marks operation start and clears the previous error
func (s *Store) begin() {
	s.mu.Lock()
	s.inflight++
	s.err = nil
	s.mu.Unlock()
}

func (s *Store) end() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

// fail records err, ends the operation and returns err
func (s *Store) fail(err error) error {
	s.mu.Lock()
	s.inflight--
	s.err = err
	s.mu.Unlock()

	var jerr *Error
	if errors.As(err, &jerr) && jerr.Kind == KindNotFound {
		log.Printf("[DEBUG] %v", err)
		return err
	}
	log.Printf("[WARN] %v", err)
	return err
}

func (s *Store) notify(ctx context.Context, ch Change) {
	if s.observer == nil {
		return
	}
	s.observer.OnChange(ctx, ch)
}

// indexOf returns position of job id in the list, -1 if missing. Caller holds the lock.
func (s *Store) indexOf(id string) int {
	for i, job := range s.jobs {
		if job.ID == id {
			return i
		}
	}
	return -1
}

func normalize(data FormData) FormData {
	if data.Status == "" {
		data.Status = StatusApplied
	}
	return data
}

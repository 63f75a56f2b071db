// Package importer loads job applications from a YAML file and adds them to the job store
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/umputun/jobtrack/app/jobs"
)

// File is the YAML import file layout
type File struct {
	Jobs []jobs.FormData `yaml:"jobs" json:"jobs" jsonschema:"required,minItems=1"`
}

// Adder adds a single job, implemented by jobs.Store
type Adder interface {
	Add(ctx context.Context, data jobs.FormData) (jobs.Application, error)
}

// Load reads and validates import file
func Load(path string) (*File, error) {
	fh, err := os.Open(path) //nolint:gosec // path from cli flag
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer fh.Close()

	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse import file %s: %w", path, err)
	}
	if err := Validate(&f); err != nil {
		return nil, fmt.Errorf("invalid import file %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks required fields and normalizes status of every job
func Validate(f *File) error {
	if len(f.Jobs) == 0 {
		return fmt.Errorf("at least one job is required")
	}
	for i := range f.Jobs {
		job := &f.Jobs[i]
		if strings.TrimSpace(job.Company) == "" {
			return fmt.Errorf("job %d: company is required", i+1)
		}
		if strings.TrimSpace(job.DateApplied) == "" {
			return fmt.Errorf("job %d: date_applied is required", i+1)
		}
		if (jobs.Application{FormData: *job}).AppliedAt().IsZero() {
			return fmt.Errorf("job %d: invalid date_applied %q", i+1, job.DateApplied)
		}
		st, err := jobs.ParseStatus(string(job.Status))
		if err != nil {
			return fmt.Errorf("job %d: %w", i+1, err)
		}
		job.Status = st
	}
	return nil
}

// Import adds all jobs with up to concurrency parallel adds. Returns number of added jobs,
// the error combines all failed adds.
func Import(ctx context.Context, adder Adder, items []jobs.FormData, concurrency int) (int, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	var (
		added int32
		mu    sync.Mutex
		errs  []error
	)
	grp := syncs.NewSizedGroup(concurrency)
	for _, item := range items {
		grp.Go(func(context.Context) {
			if _, err := adder.Add(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to import %s: %w", item.Company, err))
				mu.Unlock()
				return
			}
			atomic.AddInt32(&added, 1)
		})
	}
	grp.Wait()
	err := errors.Join(errs...)
	log.Printf("[INFO] imported %d of %d jobs", added, len(items))
	return int(added), err
}

// SkipExisting drops items already present in existing, matched by company (case-insensitive)
// and date applied. Keeps repeated imports of the same file from duplicating jobs.
func SkipExisting(existing []jobs.Application, items []jobs.FormData) []jobs.FormData {
	seen := make(map[string]struct{}, len(existing))
	for _, job := range existing {
		seen[dedupKey(job.FormData)] = struct{}{}
	}
	res := make([]jobs.FormData, 0, len(items))
	for _, item := range items {
		if _, ok := seen[dedupKey(item)]; ok {
			log.Printf("[DEBUG] skip existing job %s, %s", item.Company, item.DateApplied)
			continue
		}
		res = append(res, item)
	}
	return res
}

func dedupKey(f jobs.FormData) string {
	return strings.ToLower(strings.TrimSpace(f.Company)) + "|" + strings.TrimSpace(f.DateApplied)
}

// GenerateSchema makes JSON schema for the import file
func GenerateSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{FieldNameTag: "yaml"}
	return r.Reflect(&File{})
}

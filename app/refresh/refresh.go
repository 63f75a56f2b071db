// Package refresh reloads the job store on a cron schedule, picking up changes made by other
// clients of the same key-value service
package refresh

import (
	"context"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/robfig/cron/v3"
)

// Loader reloads state from the key-value service, implemented by jobs.Store
type Loader interface {
	Load(ctx context.Context) error
}

// Refresher calls Loader.Load on schedule
type Refresher struct {
	loader   Loader
	schedule cron.Schedule
	spec     string
}

// New makes Refresher for a standard cron spec or descriptor, i.e. "*/5 * * * *" or "@every 5m"
func New(loader Loader, spec string) (*Refresher, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return &Refresher{loader: loader, schedule: sched, spec: spec}, nil
}

// Next returns next refresh time after t
func (r *Refresher) Next(t time.Time) time.Time {
	return r.schedule.Next(t)
}

// Run blocks until ctx canceled. Overlapping runs are skipped.
func (r *Refresher) Run(ctx context.Context) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(r.schedule, cron.FuncJob(func() {
		if err := r.loader.Load(ctx); err != nil {
			log.Printf("[WARN] scheduled refresh failed, %v", err)
			return
		}
		log.Printf("[DEBUG] scheduled refresh completed, next at %s", r.schedule.Next(time.Now()).Format(time.RFC3339))
	}))

	log.Printf("[INFO] refresh activated, %q, first at %s", r.spec, r.schedule.Next(time.Now()).Format(time.RFC3339))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Printf("[DEBUG] refresh stopped")
}

// Package notify delivers job application change notifications via go-pkgz/notify destinations
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
	"github.com/go-pkgz/syncs"

	"github.com/umputun/jobtrack/app/jobs"
)

// Params for notification service
type Params struct {
	Destinations []string // webhook URLs or mailto: links
	Timeout      time.Duration
	HostName     string
	SMTP         notify.SMTPParams
}

// Service sends one-line change notifications asynchronously, implements jobs.Observer
type Service struct {
	notifiers    []notify.Notifier
	destinations []string
	timeout      time.Duration
	hostName     string
	group        *syncs.SizedGroup
}

// NewService makes notification service, nil if no destinations configured
func NewService(p Params) *Service {
	if len(p.Destinations) == 0 {
		return nil
	}
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}

	notifiers := []notify.Notifier{notify.NewWebhook(notify.WebhookParams{Timeout: p.Timeout})}
	if p.SMTP.Host != "" {
		notifiers = append(notifiers, notify.NewEmail(p.SMTP))
	}

	return &Service{
		notifiers:    notifiers,
		destinations: p.Destinations,
		timeout:      p.Timeout,
		hostName:     p.HostName,
		group:        syncs.NewSizedGroup(4),
	}
}

// OnChange sends notification about the change to all destinations in background
func (s *Service) OnChange(_ context.Context, ch jobs.Change) {
	text := s.MakeText(ch)
	for _, dest := range s.destinations {
		s.group.Go(func(context.Context) {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := notify.Send(ctx, s.notifiers, dest, text); err != nil {
				log.Printf("[WARN] failed to send notification to %s, %v", redact(dest), err)
				return
			}
			log.Printf("[DEBUG] notification sent to %s", redact(dest))
		})
	}
}

// Wait blocks until all pending notifications are sent
func (s *Service) Wait() {
	s.group.Wait()
}

// MakeText formats a change as a single line
func (s *Service) MakeText(ch jobs.Change) string {
	job := ch.Job
	title := job.Company
	if job.Position != "" {
		title += ", " + job.Position
	}

	var msg string
	switch ch.Kind {
	case jobs.ChangeAdded:
		msg = fmt.Sprintf("job added: %s (%s, applied %s)", title, job.Status, job.DateApplied)
	case jobs.ChangeUpdated:
		msg = "job updated: " + title
		if ch.Previous != nil && ch.Previous.Status != job.Status {
			msg += fmt.Sprintf(", status %s -> %s", ch.Previous.Status, job.Status)
		}
	case jobs.ChangeDeleted:
		msg = "job deleted: " + title
	default:
		msg = fmt.Sprintf("job %s: %s", ch.Kind, title)
	}

	if s.hostName != "" {
		msg = "[" + s.hostName + "] " + msg
	}
	return msg
}

// redact removes credentials and query from destination for logging
func redact(dest string) string {
	if idx := strings.Index(dest, "?"); idx >= 0 {
		dest = dest[:idx]
	}
	if at := strings.LastIndex(dest, "@"); at >= 0 {
		if scheme := strings.Index(dest, "://"); scheme >= 0 && scheme < at {
			return dest[:scheme+3] + "***" + dest[at:]
		}
	}
	return dest
}

package jobs

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status of a job application
type Status string

// application statuses, from the first submit to the final outcome
const (
	StatusApplied   Status = "applied"
	StatusScreening Status = "screening"
	StatusInterview Status = "interview"
	StatusOffer     Status = "offer"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// Statuses returns all known statuses in pipeline order
func Statuses() []Status {
	return []Status{StatusApplied, StatusScreening, StatusInterview, StatusOffer, StatusRejected, StatusWithdrawn}
}

// ParseStatus converts a string to Status, empty string means StatusApplied
func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StatusApplied, nil
	}
	for _, st := range Statuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// String returns status as is
func (s Status) String() string { return string(s) }

// FormData is the caller-supplied part of a job application, everything except id and timestamps
type FormData struct {
	Company     string `json:"company" yaml:"company" jsonschema:"required,description=company name"`
	Position    string `json:"position,omitempty" yaml:"position" jsonschema:"description=job title"`
	Location    string `json:"location,omitempty" yaml:"location"`
	Status      Status `json:"status,omitempty" yaml:"status" jsonschema:"enum=applied,enum=screening,enum=interview,enum=offer,enum=rejected,enum=withdrawn"`
	DateApplied string `json:"dateApplied" yaml:"date_applied" jsonschema:"required,description=ISO-8601 date or timestamp"`
	Salary      string `json:"salary,omitempty" yaml:"salary"`
	URL         string `json:"url,omitempty" yaml:"url"`
	Contact     string `json:"contact,omitempty" yaml:"contact"`
	Notes       string `json:"notes,omitempty" yaml:"notes"`
}

// Application is a tracked job application as stored in the key-value service
type Application struct {
	ID string `json:"id"`
	FormData
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AppliedAt parses DateApplied, zero time if empty or malformed
func (a Application) AppliedAt() time.Time {
	return parseDate(a.DateApplied)
}

const (
	// KeyPrefix is prepended to job id to make the key-value store key
	KeyPrefix = "job:"
	// ListPattern matches all job keys
	ListPattern = KeyPrefix + "*"
	idPrefix    = "job_"
)

// Key returns the key-value store key for job id
func Key(id string) string { return KeyPrefix + id }

// NewID makes a job id, "job_" followed by a time-ordered UUIDv7
func NewID() string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return idPrefix + u.String()
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// sortByDateApplied orders newest first, undated applications go last
func sortByDateApplied(list []Application) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].AppliedAt().After(list[j].AppliedAt())
	})
}

package web

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umputun/jobtrack/app/jobs"
)

func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found", err: &jobs.Error{Kind: jobs.KindNotFound, Op: "update", Key: "job_1"}, want: "Job not found"},
		{name: "load storage", err: &jobs.Error{Kind: jobs.KindStorage, Op: "load", Err: errors.New("timeout")},
			want: "Failed to load jobs: timeout"},
		{name: "add storage", err: &jobs.Error{Kind: jobs.KindStorage, Op: "add", Err: errors.New("set failed")},
			want: "Failed to add job: set failed"},
		{name: "delete storage without cause", err: &jobs.Error{Kind: jobs.KindStorage, Op: "delete"},
			want: "Failed to delete job"},
		{name: "parse", err: &jobs.Error{Kind: jobs.KindParse, Op: "load", Key: "job:1", Err: errors.New("bad json")},
			want: "Failed to load jobs: stored job data is malformed"},
		{name: "unknown op", err: &jobs.Error{Kind: jobs.KindStorage, Op: "sync"}, want: "Operation failed"},
		{name: "wrapped", err: fmt.Errorf("wrap: %w", &jobs.Error{Kind: jobs.KindStorage, Op: "update",
			Err: errors.New("conn reset")}), want: "Failed to update job: conn reset"},
		{name: "foreign error", err: errors.New("boom"), want: "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorText(tt.err))
		})
	}
}

package web

import (
	"errors"

	"github.com/umputun/jobtrack/app/jobs"
)

// failure messages per store operation, shown when the cause is not worth displaying
var opFailures = map[string]string{
	"load":   "Failed to load jobs",
	"add":    "Failed to add job",
	"update": "Failed to update job",
	"delete": "Failed to delete job",
}

// errorText converts a store error to a message for the UI
func errorText(err error) string {
	if err == nil {
		return ""
	}
	var jerr *jobs.Error
	if !errors.As(err, &jerr) {
		return "Something went wrong"
	}

	fallback, ok := opFailures[jerr.Op]
	if !ok {
		fallback = "Operation failed"
	}

	switch jerr.Kind {
	case jobs.KindNotFound:
		return "Job not found"
	case jobs.KindParse:
		return fallback + ": stored job data is malformed"
	case jobs.KindStorage:
		if jerr.Err != nil && jerr.Err.Error() != "" {
			return fallback + ": " + jerr.Err.Error()
		}
		return fallback
	default:
		return fallback
	}
}

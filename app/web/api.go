package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobtrack/app/jobs"
)

// APIStatusResponse is the JSON response for /api/v1/status
type APIStatusResponse struct {
	Loading   bool           `json:"loading"`
	Error     string         `json:"error,omitempty"`
	Total     int            `json:"total"`
	Counts    map[string]int `json:"counts"`
	Timestamp time.Time      `json:"timestamp"`
}

// APIJobsResponse is the JSON response for job list
type APIJobsResponse struct {
	Jobs  []jobs.Application `json:"jobs"`
	Total int                `json:"total"`
}

// handleAPIStatus returns store state: loading flag, error text and counts per status
func (s *Server) handleAPIStatus(w http.ResponseWriter, _ *http.Request) {
	list := s.jobs.Jobs()
	resp := APIStatusResponse{
		Loading:   s.jobs.Loading(),
		Error:     errorText(s.jobs.Err()),
		Total:     len(list),
		Counts:    map[string]int{},
		Timestamp: time.Now(),
	}
	for _, c := range countByStatus(list) {
		resp.Counts[c.Status.String()] = c.Count
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAPIListJobs returns jobs, newest application first as kept by the store
func (s *Server) handleAPIListJobs(w http.ResponseWriter, r *http.Request) {
	list := s.jobs.Jobs()
	if f := r.URL.Query().Get("status"); f != "" {
		st, err := jobs.ParseStatus(f)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		list = filterByStatus(list, st)
	}
	s.writeJSON(w, http.StatusOK, APIJobsResponse{Jobs: list, Total: len(list)})
}

// handleAPIGetJob returns a single job
func (s *Server) handleAPIGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "Job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// handleAPIAddJob creates a job from JSON form data
func (s *Server) handleAPIAddJob(w http.ResponseWriter, r *http.Request) {
	var form jobs.FormData
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate(&form); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.jobs.Add(r.Context(), form)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, job)
}

// handleAPIUpdateJob merges JSON fields into the existing job form data and saves it.
// Fields missing from the body keep their current values.
func (s *Server) handleAPIUpdateJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, ok := s.jobs.Get(id)
	if !ok {
		// update of unknown id records not found in the store, so /api/v1/status shows it like the web ui does
		_, err := s.jobs.Update(r.Context(), id, jobs.FormData{})
		s.writeStoreError(w, err)
		return
	}

	form := existing.FormData
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate(&form); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.jobs.Update(r.Context(), id, form)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// handleAPIDeleteJob deletes a job
func (s *Server) handleAPIDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.jobs.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// handleAPIReload reloads jobs from the key-value service
func (s *Server) handleAPIReload(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Load(r.Context()); err != nil {
		s.writeStoreError(w, err)
		return
	}
	list := s.jobs.Jobs()
	s.writeJSON(w, http.StatusOK, APIJobsResponse{Jobs: list, Total: len(list)})
}

// handleAPIClearError resets the store error
func (s *Server) handleAPIClearError(w http.ResponseWriter, _ *http.Request) {
	s.jobs.ClearError()
	s.writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// writeStoreError maps store errors to status codes, not found is 404, everything else 500
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, errorText(err))
		return
	}
	log.Printf("[WARN] store operation failed: %v", err)
	s.writeJSONError(w, http.StatusInternalServerError, errorText(err))
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[WARN] failed to encode JSON error response: %v", err)
	}
}

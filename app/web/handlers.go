package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobtrack/app/jobs"
	"github.com/umputun/jobtrack/app/resumes"
)

// recentJobs is the number of jobs shown on the home page
const recentJobs = 5

// handleHome renders the home page with per-status counts and recent applications
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	list := s.jobs.Jobs()
	data := s.newTemplateData(r, "Home")
	data.Total = len(list)
	data.Counts = countByStatus(list)
	if len(list) > recentJobs {
		list = list[:recentJobs]
	}
	data.Jobs = list
	s.render(w, http.StatusOK, "home", data)
}

// handleJobs renders the job list with the add form, optionally filtered by status
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r, "Jobs")
	list := s.jobs.Jobs()
	data.Total = len(list)

	if f := r.URL.Query().Get("status"); f != "" {
		st, err := jobs.ParseStatus(f)
		if err != nil {
			data.Error = err.Error()
		} else {
			data.Filter = st
			list = filterByStatus(list, st)
		}
	}
	data.Jobs = list
	s.render(w, http.StatusOK, "jobs", data)
}

// handleAddJob creates a job from the form. Store failures are shown by the jobs page banner.
func (s *Server) handleAddJob(w http.ResponseWriter, r *http.Request) {
	form, err := parseForm(r)
	if err != nil {
		data := s.newTemplateData(r, "Jobs")
		data.Jobs = s.jobs.Jobs()
		data.Total = len(data.Jobs)
		data.Job = jobs.Application{FormData: form}
		data.Error = err.Error()
		s.render(w, http.StatusBadRequest, "jobs", data)
		return
	}

	if _, err := s.jobs.Add(r.Context(), form); err != nil {
		log.Printf("[WARN] failed to add job from form: %v", err)
	}
	http.Redirect(w, r, s.url("/jobs"), http.StatusSeeOther)
}

// handleEditJob renders the edit form for a job
func (s *Server) handleEditJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.jobs.Get(id)
	if !ok {
		s.renderNotFound(w, r)
		return
	}
	data := s.newTemplateData(r, "Edit "+job.Company)
	data.Job = job
	s.render(w, http.StatusOK, "edit", data)
}

// handleUpdateJob saves the edit form
func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	form, err := parseForm(r)
	if err != nil {
		job, ok := s.jobs.Get(id)
		if !ok {
			s.renderNotFound(w, r)
			return
		}
		job.FormData = form
		data := s.newTemplateData(r, "Edit "+job.Company)
		data.Job = job
		data.Error = err.Error()
		s.render(w, http.StatusBadRequest, "edit", data)
		return
	}

	if _, err := s.jobs.Update(r.Context(), id, form); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			s.renderNotFound(w, r)
			return
		}
		log.Printf("[WARN] failed to update job %s from form: %v", id, err)
	}
	http.Redirect(w, r, s.url("/jobs"), http.StatusSeeOther)
}

// handleDeleteJob deletes a job
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.jobs.Delete(r.Context(), id); err != nil {
		log.Printf("[WARN] failed to delete job %s: %v", id, err)
	}
	http.Redirect(w, r, s.url("/jobs"), http.StatusSeeOther)
}

// handleReload reloads jobs from the key-value service
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Load(r.Context()); err != nil {
		log.Printf("[WARN] failed to reload jobs: %v", err)
	}
	http.Redirect(w, r, s.url("/jobs"), http.StatusSeeOther)
}

// handleClearError dismisses the error banner
func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	s.jobs.ClearError()
	http.Redirect(w, r, s.url("/jobs"), http.StatusSeeOther)
}

// handleUploadForm renders resume upload form and uploaded resumes
func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	s.renderUpload(w, r, http.StatusOK, "")
}

// handleUpload stores uploaded resume file
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(resumes.MaxSize); err != nil {
		s.renderUpload(w, r, http.StatusBadRequest, "Invalid upload")
		return
	}
	file, header, err := r.FormFile("resume")
	if err != nil {
		s.renderUpload(w, r, http.StatusBadRequest, "Resume file is required")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, resumes.MaxSize+1))
	if err != nil {
		s.renderUpload(w, r, http.StatusBadRequest, "Failed to read resume file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	res, err := s.resumes.Save(r.Context(), header.Filename, contentType, body)
	switch {
	case errors.Is(err, resumes.ErrTooLarge):
		s.renderUpload(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Resume is larger than %s", humanSize(resumes.MaxSize)))
		return
	case errors.Is(err, resumes.ErrEmpty):
		s.renderUpload(w, r, http.StatusBadRequest, "Resume file is empty")
		return
	case err != nil:
		log.Printf("[WARN] failed to save resume: %v", err)
		s.renderUpload(w, r, http.StatusInternalServerError, "Failed to save resume")
		return
	}
	log.Printf("[INFO] resume %s uploaded as %s, %d bytes", res.FileName, res.ID, res.Size)
	http.Redirect(w, r, s.url("/upload"), http.StatusSeeOther)
}

// handleDownloadResume sends stored resume file
func (s *Server) handleDownloadResume(w http.ResponseWriter, r *http.Request) {
	res, err := s.resumes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[DEBUG] resume download failed: %v", err)
		http.Error(w, "Resume not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := w.Write(res.Data); err != nil {
		log.Printf("[WARN] failed to write resume: %v", err)
	}
}

// handleDeleteResume removes stored resume
func (s *Server) handleDeleteResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.resumes.Delete(r.Context(), id); err != nil {
		log.Printf("[WARN] failed to delete resume: %v", err)
		s.renderUpload(w, r, http.StatusInternalServerError, "Failed to delete resume")
		return
	}
	log.Printf("[INFO] resume %s deleted", id)
	http.Redirect(w, r, s.url("/upload"), http.StatusSeeOther)
}

func (s *Server) renderUpload(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	data := s.newTemplateData(r, "Upload Resume")
	list, err := s.resumes.List(r.Context())
	if err != nil {
		log.Printf("[WARN] failed to list resumes: %v", err)
		errMsg = "Failed to load resumes"
	}
	data.Resumes = list
	if errMsg != "" {
		data.Error = errMsg
	}
	s.render(w, status, "upload", data)
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r, "Jobs")
	data.Jobs = s.jobs.Jobs()
	data.Total = len(data.Jobs)
	data.Error = "Job not found"
	s.render(w, http.StatusNotFound, "jobs", data)
}

// parseForm reads job form fields and validates them. FormData returned even on error
// to re-populate the form.
func parseForm(r *http.Request) (jobs.FormData, error) {
	if err := r.ParseForm(); err != nil {
		return jobs.FormData{}, fmt.Errorf("invalid form data")
	}
	field := func(name string) string { return strings.TrimSpace(r.PostFormValue(name)) }
	form := jobs.FormData{
		Company:     field("company"),
		Position:    field("position"),
		Location:    field("location"),
		Status:      jobs.Status(field("status")),
		DateApplied: field("dateApplied"),
		Salary:      field("salary"),
		URL:         field("url"),
		Contact:     field("contact"),
		Notes:       field("notes"),
	}
	return form, validate(&form)
}

// validate checks required fields and normalizes status
func validate(form *jobs.FormData) error {
	if form.Company == "" {
		return fmt.Errorf("company is required")
	}
	if form.DateApplied == "" {
		return fmt.Errorf("date applied is required")
	}
	if (jobs.Application{FormData: *form}).AppliedAt().IsZero() {
		return fmt.Errorf("invalid date applied %q", form.DateApplied)
	}
	st, err := jobs.ParseStatus(string(form.Status))
	if err != nil {
		return err
	}
	form.Status = st
	return nil
}

func countByStatus(list []jobs.Application) []statusCount {
	counts := map[jobs.Status]int{}
	for _, j := range list {
		counts[j.Status]++
	}
	res := make([]statusCount, 0, len(jobs.Statuses()))
	for _, st := range jobs.Statuses() {
		res = append(res, statusCount{Status: st, Count: counts[st]})
	}
	return res
}

func filterByStatus(list []jobs.Application, st jobs.Status) []jobs.Application {
	res := make([]jobs.Application, 0, len(list))
	for _, j := range list {
		if j.Status == st {
			res = append(res, j)
		}
	}
	return res
}

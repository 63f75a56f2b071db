package web

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/jobtrack/app/jobs"
	"github.com/umputun/jobtrack/app/resumes"
)

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestServer_handleHome(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.addJob(t, "Acme", "2024-01-01", jobs.StatusApplied)
	env.addJob(t, "Globex", "2024-02-01", jobs.StatusInterview)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "2 applications tracked")
	assert.Contains(t, body, "Acme")
	assert.Contains(t, body, "Globex")
	assert.Contains(t, body, `href="/jobs?status=interview"`)

	t.Run("recent jobs limited", func(t *testing.T) {
		for i := range 6 {
			env.addJob(t, "Company"+string(rune('A'+i)), "2023-01-0"+string(rune('1'+i)), jobs.StatusApplied)
		}
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "8 applications tracked")
		assert.Equal(t, recentJobs, strings.Count(rec.Body.String(), `<tr id="job_`))
	})

	t.Run("unknown path", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/nope", http.NoBody))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_handleJobs(t *testing.T) {
	env := newTestEnv(t, Config{})
	acme := env.addJob(t, "Acme", "2024-01-01", jobs.StatusApplied)
	globex := env.addJob(t, "Globex", "2024-02-01", jobs.StatusInterview)

	t.Run("all jobs newest first", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/jobs", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `<tr id="`+acme.ID+`">`)
		assert.Contains(t, body, `<tr id="`+globex.ID+`">`)
		assert.Less(t, strings.Index(body, globex.ID), strings.Index(body, acme.ID))
		assert.Contains(t, body, `action="/jobs"`)
		assert.Contains(t, body, `name="dateApplied"`)
	})

	t.Run("filtered by status", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/jobs?status=interview", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, globex.ID)
		assert.NotContains(t, body, acme.ID)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/jobs?status=bogus", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "invalid status")
		assert.Contains(t, body, acme.ID)
		assert.Contains(t, body, globex.ID)
	})
}

func TestServer_handleAddJob(t *testing.T) {
	t.Run("valid form", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		rec := env.do(t, formRequest(http.MethodPost, "/jobs", url.Values{
			"company": {" Acme "}, "position": {"Go developer"}, "dateApplied": {"2024-01-01"},
			"status": {"screening"}, "notes": {"referral"},
		}))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/jobs", rec.Header().Get("Location"))

		list := env.store.Jobs()
		require.Len(t, list, 1)
		assert.Equal(t, "Acme", list[0].Company)
		assert.Equal(t, "Go developer", list[0].Position)
		assert.Equal(t, jobs.StatusScreening, list[0].Status)
		assert.Equal(t, "referral", list[0].Notes)
	})

	t.Run("status defaults to applied", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		rec := env.do(t, formRequest(http.MethodPost, "/jobs", url.Values{"company": {"Acme"}, "dateApplied": {"2024-01-01"}}))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		require.Len(t, env.store.Jobs(), 1)
		assert.Equal(t, jobs.StatusApplied, env.store.Jobs()[0].Status)
	})

	t.Run("validation errors keep form values", func(t *testing.T) {
		tests := []struct {
			name   string
			values url.Values
			errMsg string
		}{
			{"missing company", url.Values{"position": {"Dev"}, "dateApplied": {"2024-01-01"}}, "company is required"},
			{"missing date", url.Values{"company": {"Acme"}}, "date applied is required"},
			{"bad date", url.Values{"company": {"Acme"}, "dateApplied": {"yesterday"}}, "invalid date applied"},
			{"bad status", url.Values{"company": {"Acme"}, "dateApplied": {"2024-01-01"}, "status": {"ghosted"}}, "invalid status"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				env := newTestEnv(t, Config{})
				rec := env.do(t, formRequest(http.MethodPost, "/jobs", tt.values))
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Contains(t, rec.Body.String(), tt.errMsg)
				if c := tt.values.Get("company"); c != "" {
					assert.Contains(t, rec.Body.String(), `value="`+c+`"`)
				}
				assert.Empty(t, env.store.Jobs())
			})
		}
	})

	t.Run("store failure shown in banner", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		env.kv.failSet = true
		rec := env.do(t, formRequest(http.MethodPost, "/jobs", url.Values{"company": {"Acme"}, "dateApplied": {"2024-01-01"}}))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Empty(t, env.store.Jobs())
		require.ErrorIs(t, env.store.Err(), jobs.ErrStorage)

		rec = env.do(t, httptest.NewRequest(http.MethodGet, "/jobs", http.NoBody))
		assert.Contains(t, rec.Body.String(), "Failed to add job: set failed")
	})
}

func TestServer_handleEditJob(t *testing.T) {
	env := newTestEnv(t, Config{})
	job := env.addJob(t, "Acme", "2024-01-01", jobs.StatusOffer)

	t.Run("existing job", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/edit", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Edit Acme")
		assert.Contains(t, body, `action="/jobs/`+job.ID+`"`)
		assert.Contains(t, body, `<option value="offer" selected>offer</option>`)
		// edit page is under jobs, nav keeps it active
		assert.Contains(t, body, `class="nav-link active"`)
	})

	t.Run("unknown job", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/jobs/job_missing/edit", http.NoBody))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Job not found")
	})
}

func TestServer_handleUpdateJob(t *testing.T) {
	t.Run("replaces form fields", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		job := env.addJob(t, "Acme", "2024-01-01", jobs.StatusApplied)

		rec := env.do(t, formRequest(http.MethodPost, "/jobs/"+job.ID, url.Values{
			"company": {"Acme Corp"}, "dateApplied": {"2024-01-01"}, "status": {"interview"},
		}))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/jobs", rec.Header().Get("Location"))

		got, ok := env.store.Get(job.ID)
		require.True(t, ok)
		assert.Equal(t, "Acme Corp", got.Company)
		assert.Equal(t, jobs.StatusInterview, got.Status)
		assert.Empty(t, got.Position, "fields missing from the form are cleared")
		assert.Equal(t, job.CreatedAt, got.CreatedAt)
		assert.True(t, got.UpdatedAt.After(job.UpdatedAt))
	})

	t.Run("validation error", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		job := env.addJob(t, "Acme", "2024-01-01", jobs.StatusApplied)
		rec := env.do(t, formRequest(http.MethodPost, "/jobs/"+job.ID, url.Values{"company": {""}, "dateApplied": {"2024-01-01"}}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "company is required")
		got, _ := env.store.Get(job.ID)
		assert.Equal(t, "Acme", got.Company)
	})

	t.Run("unknown job", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		rec := env.do(t, formRequest(http.MethodPost, "/jobs/job_missing", url.Values{"company": {"X"}, "dateApplied": {"2024-01-01"}}))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.ErrorIs(t, env.store.Err(), jobs.ErrNotFound)
	})

	t.Run("unknown job with invalid form", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		rec := env.do(t, formRequest(http.MethodPost, "/jobs/job_missing", url.Values{}))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		job := env.addJob(t, "Acme", "2024-01-01", jobs.StatusApplied)
		env.kv.failSet = true
		rec := env.do(t, formRequest(http.MethodPost, "/jobs/"+job.ID, url.Values{"company": {"Other"}, "dateApplied": {"2024-01-01"}}))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		got, _ := env.store.Get(job.ID)
		assert.Equal(t, "Acme", got.Company)
		require.ErrorIs(t, env.store.Err(), jobs.ErrStorage)
	})
}

func TestServer_handleDeleteJob(t *testing.T) {
	env := newTestEnv(t, Config{})
	acme := env.addJob(t, "Acme", "2024-01-01", jobs.StatusApplied)
	globex := env.addJob(t, "Globex", "2024-02-01", jobs.StatusApplied)

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/jobs/"+acme.ID+"/delete", http.NoBody))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	list := env.store.Jobs()
	require.Len(t, list, 1)
	assert.Equal(t, globex.ID, list[0].ID)

	t.Run("store failure keeps job", func(t *testing.T) {
		env.kv.failDelete = true
		defer func() { env.kv.failDelete = false }()
		rec := env.do(t, httptest.NewRequest(http.MethodPost, "/jobs/"+globex.ID+"/delete", http.NoBody))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Len(t, env.store.Jobs(), 1)

		rec = env.do(t, httptest.NewRequest(http.MethodGet, "/jobs", http.NoBody))
		assert.Contains(t, rec.Body.String(), "Failed to delete job: delete failed")
	})
}

func TestServer_handleReload(t *testing.T) {
	env := newTestEnv(t, Config{})
	err := env.kv.Set(context.Background(), jobs.Key("job_ext"),
		`{"id":"job_ext","company":"External","dateApplied":"2024-03-01","status":"offer"}`)
	require.NoError(t, err)
	assert.Empty(t, env.store.Jobs())

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/jobs/reload", http.NoBody))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, env.store.Jobs(), 1)
	assert.Equal(t, "External", env.store.Jobs()[0].Company)

	t.Run("failure shown", func(t *testing.T) {
		env.kv.failList = true
		defer func() { env.kv.failList = false }()
		rec := env.do(t, httptest.NewRequest(http.MethodPost, "/jobs/reload", http.NoBody))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Len(t, env.store.Jobs(), 1, "list kept on failure")
		require.ErrorIs(t, env.store.Err(), jobs.ErrStorage)
	})
}

func multipartUpload(t *testing.T, field, fileName string, data []byte) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServer_Upload(t *testing.T) {
	env := newTestEnv(t, Config{})

	t.Run("form rendered", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/upload", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `enctype="multipart/form-data"`)
		assert.Contains(t, body, `name="resume"`)
		assert.Contains(t, body, "No resumes uploaded yet")
	})

	var resumeID string
	t.Run("upload and list", func(t *testing.T) {
		rec := env.do(t, multipartUpload(t, "resume", "cv.pdf", []byte("%PDF-1.4 resume")))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/upload", rec.Header().Get("Location"))

		list, err := env.srv.resumes.List(context.Background())
		require.NoError(t, err)
		require.Len(t, list, 1)
		resumeID = list[0].ID
		assert.Equal(t, "cv.pdf", list[0].FileName)

		rec = env.do(t, httptest.NewRequest(http.MethodGet, "/upload", http.NoBody))
		assert.Contains(t, rec.Body.String(), `href="/upload/`+resumeID+`">cv.pdf</a>`)
	})

	t.Run("download", func(t *testing.T) {
		require.NotEmpty(t, resumeID)
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/upload/"+resumeID, http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "%PDF-1.4 resume", rec.Body.String())
		assert.Equal(t, `attachment; filename="cv.pdf"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	})

	t.Run("download unknown", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/upload/resume_missing", http.NoBody))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		require.NotEmpty(t, resumeID)
		rec := env.do(t, httptest.NewRequest(http.MethodPost, "/upload/"+resumeID+"/delete", http.NoBody))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/upload", rec.Header().Get("Location"))

		list, err := env.srv.resumes.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, list)

		env.kv.failDelete = true
		defer func() { env.kv.failDelete = false }()
		rec = env.do(t, httptest.NewRequest(http.MethodPost, "/upload/"+resumeID+"/delete", http.NoBody))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "Failed to delete resume")
	})

	t.Run("missing file field", func(t *testing.T) {
		rec := env.do(t, multipartUpload(t, "other", "cv.pdf", []byte("data")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Resume file is required")
	})

	t.Run("empty file", func(t *testing.T) {
		rec := env.do(t, multipartUpload(t, "resume", "cv.pdf", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Resume file is empty")
	})

	t.Run("too large", func(t *testing.T) {
		rec := env.do(t, multipartUpload(t, "resume", "big.pdf", bytes.Repeat([]byte("x"), resumes.MaxSize+1)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, rec.Body.String(), "Resume is larger than 5.0 MB")
	})

	t.Run("not multipart", func(t *testing.T) {
		rec := env.do(t, formRequest(http.MethodPost, "/upload", url.Values{"resume": {"text"}}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestValidate(t *testing.T) {
	form := jobs.FormData{Company: "Acme", DateApplied: "2024-01-15T09:30:00Z", Status: "Interview"}
	require.NoError(t, validate(&form))
	assert.Equal(t, jobs.StatusInterview, form.Status)

	form = jobs.FormData{Company: "Acme", DateApplied: "2024-01-15"}
	require.NoError(t, validate(&form))
	assert.Equal(t, jobs.StatusApplied, form.Status)
}

func TestCountByStatus(t *testing.T) {
	list := []jobs.Application{
		{FormData: jobs.FormData{Status: jobs.StatusApplied}},
		{FormData: jobs.FormData{Status: jobs.StatusApplied}},
		{FormData: jobs.FormData{Status: jobs.StatusOffer}},
	}
	counts := countByStatus(list)
	require.Len(t, counts, len(jobs.Statuses()))
	assert.Equal(t, statusCount{Status: jobs.StatusApplied, Count: 2}, counts[0])
	assert.Equal(t, statusCount{Status: jobs.StatusOffer, Count: 1}, counts[3])
	assert.Equal(t, statusCount{Status: jobs.StatusWithdrawn, Count: 0}, counts[5])
	assert.Len(t, filterByStatus(list, jobs.StatusApplied), 2)
	assert.Empty(t, filterByStatus(list, jobs.StatusRejected))
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tunevault/internal/downloader"
	"tunevault/internal/pipeline"
	"tunevault/internal/provider/spotify"
)

type SyncRequest struct {
	URL     string `json:"url"`
	Folder  string `json:"folder"`
	Bitrate int    `json:"bitrate"`
}

type LoginRequest struct {
	Code string `json:"code"`
}

type SessionResponse struct {
	Authenticated  bool  `json:"authenticated"`
	DefaultBitrate int   `json:"default_bitrate"`
	Bitrates       []int `json:"bitrates"`
}

type JobResponse struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Folder      string    `json:"folder"`
	Bitrate     int       `json:"bitrate"`
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	Completed   int       `json:"completed"`
	Total       int       `json:"total"`
	Current     string    `json:"current,omitempty"`
	Stored      int       `json:"stored"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   string    `json:"created_at"`
	StartedAt   *string   `json:"started_at,omitempty"`
	CompletedAt *string   `json:"completed_at,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, sess Session) {
	// ?code= logs in directly, as shared links do
	if code := r.URL.Query().Get("code"); code != "" {
		if err := s.gate.Check(code); err != nil {
			s.logger.Warn("Rejected access code from %s: %v", r.RemoteAddr, err)
		} else {
			s.sessions.SetAuthenticated(sess.ID, true)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	http.ServeFileFS(w, r, staticFS, "index.html")
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sess Session) {
	bitrates := make([]int, len(downloader.Bitrates))
	for i, b := range downloader.Bitrates {
		bitrates[i] = int(b)
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated:  sess.Authenticated,
		DefaultBitrate: s.config.DefaultBitrate,
		Bitrates:       bitrates,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, sess Session) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: malformed body", ErrInvalidRequest))
		return
	}

	if err := s.gate.Check(req.Code); err != nil {
		s.logger.Warn("Failed login from %s: %v", r.RemoteAddr, err)
		writeError(w, 0, err)
		return
	}

	s.sessions.SetAuthenticated(sess.ID, true)
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, sess Session) {
	s.sessions.SetAuthenticated(sess.ID, false)
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}

// validate normalizes a sync request into pipeline terms.
func (s *Server) validate(req SyncRequest) (pipeline.Request, error) {
	url := strings.TrimSpace(req.URL)
	if !spotify.IsPlaylistURL(url) {
		return pipeline.Request{}, fmt.Errorf("%w: enter a valid Spotify playlist link", ErrInvalidRequest)
	}

	folder := pipeline.SanitizeFolder(req.Folder)
	if folder == "" {
		return pipeline.Request{}, fmt.Errorf("%w: enter a folder name", ErrInvalidRequest)
	}

	bitrate := downloader.Bitrate(req.Bitrate)
	if req.Bitrate == 0 {
		bitrate = downloader.Bitrate(s.config.DefaultBitrate)
	}
	if !bitrate.Valid() {
		return pipeline.Request{}, fmt.Errorf("%w: unsupported bitrate %d", ErrInvalidRequest, req.Bitrate)
	}

	return pipeline.Request{PlaylistURL: url, Folder: folder, Bitrate: bitrate}, nil
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, sess Session) {
	var body SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: malformed body", ErrInvalidRequest))
		return
	}

	req, err := s.validate(body)
	if err != nil {
		writeError(w, 0, err)
		return
	}

	job, err := s.jobMgr.CreateJob(req.PlaylistURL, req.Folder, int(req.Bitrate))
	if err != nil {
		writeError(w, 0, err)
		return
	}
	s.logger.Info("Created job %s for %s into %q", job.ID, req.PlaylistURL, req.Folder)

	s.shutdown.Go(func(ctx context.Context) {
		s.processJob(ctx, job.ID, req)
	})

	writeJSON(w, http.StatusAccepted, s.jobToResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request, sess Session) {
	jobs := s.jobMgr.ListJobs()
	responses := make([]*JobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = s.jobToResponse(job)
	}
	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, sess Session) {
	job, err := s.jobMgr.GetJob(r.PathValue("id"))
	if err != nil {
		writeError(w, 0, err)
		return
	}
	writeJSON(w, http.StatusOK, s.jobToResponse(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, sess Session) {
	job, err := s.jobMgr.Cancel(r.PathValue("id"))
	if err != nil {
		writeError(w, 0, err)
		return
	}
	s.logger.Info("Cancel requested for job %s", job.ID)
	writeJSON(w, http.StatusOK, s.jobToResponse(job))
}

func (s *Server) processJob(parent context.Context, id string, req pipeline.Request) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log := s.logger.With("job", id)

	// A job cancelled while pending never starts
	started := false
	s.jobMgr.SetCancel(id, cancel)
	s.jobMgr.UpdateJob(id, func(j *Job) {
		if j.Status != StatusPending {
			return
		}
		j.Status = StatusRunning
		j.Message = "Resolving playlist..."
		started = true
	})
	if !started {
		return
	}

	log.Info("Starting job")

	hooks := pipeline.Hooks{
		OnTracksResolved: func(total int) {
			s.jobMgr.UpdateJob(id, func(j *Job) {
				j.Total = total
				j.Message = fmt.Sprintf("Found %d tracks", total)
			})
		},
		OnTrackStart: func(i, total int, label string) {
			s.jobMgr.UpdateJob(id, func(j *Job) {
				j.Current = fmt.Sprintf("(%d/%d) %s", i+1, total, label)
			})
		},
		OnTrackDone: func(res pipeline.TrackResult) {
			s.jobMgr.UpdateJob(id, func(j *Job) {
				j.Completed = res.Index + 1
				switch res.Status {
				case pipeline.StatusStored:
					j.Stored++
				case pipeline.StatusSkipped:
					j.Skipped++
				default:
					j.Failed++
				}
			})
		},
		OnProgress: func(fraction float64) {
			s.jobMgr.UpdateJob(id, func(j *Job) {
				j.Progress = fraction
			})
		},
	}

	stats, err := s.syncer.Sync(ctx, req, hooks)

	s.jobMgr.UpdateJob(id, func(j *Job) {
		j.Current = ""
		switch {
		case j.Status == StatusCancelled:
		case err != nil && errors.Is(err, context.Canceled):
			j.Status = StatusCancelled
			j.Message = "Sync cancelled"
		case err != nil:
			j.Status = StatusFailed
			j.Error = err.Error()
		default:
			j.Status = StatusCompleted
			j.Message = fmt.Sprintf("Saved %d of %d songs into %s", stats.Stored, stats.Attempted, stats.Folder)
		}
	})

	if err != nil {
		log.Error("Job finished with error: %v", err)
		return
	}
	log.Info("Job completed: %d stored, %d skipped, %d failed", stats.Stored, stats.Skipped, stats.Failed)
}

const timeLayout = "2006-01-02 15:04:05"

func (s *Server) jobToResponse(job Job) *JobResponse {
	resp := &JobResponse{
		ID:        job.ID,
		URL:       job.URL,
		Folder:    job.Folder,
		Bitrate:   job.Bitrate,
		Status:    job.Status,
		Progress:  job.Progress,
		Completed: job.Completed,
		Total:     job.Total,
		Current:   job.Current,
		Stored:    job.Stored,
		Skipped:   job.Skipped,
		Failed:    job.Failed,
		Message:   job.Message,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format(timeLayout),
	}

	if job.StartedAt != nil {
		started := job.StartedAt.Format(timeLayout)
		resp.StartedAt = &started
	}

	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format(timeLayout)
		resp.CompletedAt = &completed
	}

	return resp
}

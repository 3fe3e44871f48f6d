package web

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"tunevault/internal/config"
	"tunevault/internal/library"
	"tunevault/internal/logger"
	"tunevault/internal/pipeline"
	"tunevault/internal/shutdown"
)

// Syncer runs one playlist sync.
type Syncer interface {
	Sync(ctx context.Context, req pipeline.Request, hooks pipeline.Hooks) (pipeline.Stats, error)
}

type Server struct {
	shutdown *shutdown.Handler
	jobMgr   *JobManager
	sessions *SessionStore
	gate     *Gate
	syncer   Syncer
	store    library.Store
	config   config.Config
	logger   *logger.Logger
}

// NewServer wires the handlers. Sync jobs run under sh, so cancelling it
// stops them and sh.Wait blocks until they have returned.
func NewServer(sh *shutdown.Handler, jobMgr *JobManager, syncer Syncer, store library.Store, cfg config.Config, log *logger.Logger) *Server {
	return &Server{
		shutdown: sh,
		jobMgr:   jobMgr,
		sessions: NewSessionStore(false),
		gate:     NewGate(cfg.Secrets.AccessCode, 2*time.Second, 5),
		syncer:   syncer,
		store:    store,
		config:   cfg,
		logger:   log,
	}
}

// StartCleanup expires old jobs and sessions until the server context ends.
func (s *Server) StartCleanup() {
	s.jobMgr.StartCleanup(s.shutdown.Context())
	s.sessions.StartCleanup(s.shutdown.Context())
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// UI
	mux.HandleFunc("GET /{$}", s.withSession(s.handleIndex))
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Session
	mux.HandleFunc("GET /api/session", s.withSession(s.handleSession))
	mux.HandleFunc("POST /api/login", s.withSession(s.handleLogin))
	mux.HandleFunc("POST /api/logout", s.withSession(s.handleLogout))

	// Sync jobs
	mux.HandleFunc("POST /api/sync", s.authed(s.handleSync))
	mux.HandleFunc("GET /api/jobs", s.authed(s.handleListJobs))
	mux.HandleFunc("GET /api/jobs/{id}", s.authed(s.handleGetJob))
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.authed(s.handleCancelJob))
	mux.HandleFunc("GET /ws", s.authed(s.handleWebSocket))

	// Library
	mux.HandleFunc("GET /api/folders", s.authed(s.handleListFolders))
	mux.HandleFunc("GET /api/folders/{folder}/songs", s.authed(s.handleListSongs))
	mux.HandleFunc("GET /api/folders/{folder}/random", s.authed(s.handleRandomSong))
	mux.HandleFunc("GET /api/songs/audio", s.authed(s.handleAudio))

	return s.loggingMiddleware(mux)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(w, r, s.sessions.Resolve(w, r))
	}
}

// authed rejects requests whose session has not passed the access gate.
func (s *Server) authed(h sessionHandler) http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, sess Session) {
		if !sess.Authenticated {
			writeError(w, http.StatusUnauthorized, ErrUnauthorized)
			return
		}
		h(w, r, sess)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed by the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tunevault/internal/config"
	"tunevault/internal/library"
	"tunevault/internal/logger"
	"tunevault/internal/pipeline"
	"tunevault/internal/provider/spotify"
	"tunevault/internal/shutdown"
	"tunevault/internal/synclock"
)

const (
	testCode     = "letmein"
	testPlaylist = "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"
)

type syncFunc func(ctx context.Context, req pipeline.Request, hooks pipeline.Hooks) (pipeline.Stats, error)

func (f syncFunc) Sync(ctx context.Context, req pipeline.Request, hooks pipeline.Hooks) (pipeline.Stats, error) {
	return f(ctx, req, hooks)
}

// twoTrackSync reports two stored tracks through the hooks.
func twoTrackSync(ctx context.Context, req pipeline.Request, hooks pipeline.Hooks) (pipeline.Stats, error) {
	hooks.OnTracksResolved(2)
	for i, label := range []string{"One - A", "Two - B"} {
		hooks.OnTrackStart(i, 2, label)
		hooks.OnTrackDone(pipeline.TrackResult{Index: i, Label: label, Status: pipeline.StatusStored})
		hooks.OnProgress(float64(i+1) / 2)
	}
	return pipeline.Stats{Folder: req.Folder, Attempted: 2, Stored: 2}, nil
}

type testEnv struct {
	server *Server
	http   *httptest.Server
	client *http.Client
	jar    http.CookieJar
	store  *library.MemStore
}

func newTestEnv(t *testing.T, syncer Syncer) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Secrets.AccessCode = testCode

	sh := shutdown.New()
	store := library.NewMemStore()
	log := logger.NewWithWriters(false, io.Discard, io.Discard)
	srv := NewServer(sh, NewJobManager(), syncer, store, cfg, log)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		sh.Shutdown()
		sh.WaitTimeout(2 * time.Second)
		ts.Close()
	})

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, Timeout: 5 * time.Second}
	return &testEnv{server: srv, http: ts, client: client, jar: jar, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/login", LoginRequest{Code: testCode})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", resp.StatusCode, body)
	}
}

func (e *testEnv) waitForJob(t *testing.T, id string, done func(JobResponse) bool) JobResponse {
	t.Helper()
	var job JobResponse
	for i := 0; i < 300; i++ {
		_, body := e.do(t, http.MethodGet, "/api/jobs/"+id, nil)
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatalf("decode job: %v (%s)", err, body)
		}
		if done(job) {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached expected state, last: %+v", id, job)
	return job
}

func isDone(j JobResponse) bool { return j.Status.Done() }

func TestAPIRequiresLogin(t *testing.T) {
	env := newTestEnv(t, syncFunc(twoTrackSync))

	for _, path := range []string{"/api/folders", "/api/jobs", "/api/songs/audio?key=a/b.mp3", "/ws?job_id=x"} {
		resp, body := env.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", path, resp.StatusCode)
		}
		if !strings.Contains(string(body), "access code required") {
			t.Errorf("GET %s body = %s", path, body)
		}
	}

	resp, _ := env.do(t, http.MethodPost, "/api/sync", SyncRequest{URL: testPlaylist, Folder: "Mix"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("POST /api/sync = %d, want 401", resp.StatusCode)
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, syncFunc(twoTrackSync))

	resp, _ := env.do(t, http.MethodPost, "/api/login", LoginRequest{Code: "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong code = %d, want 401", resp.StatusCode)
	}

	env.login(t)

	var sess SessionResponse
	_, body := env.do(t, http.MethodGet, "/api/session", nil)
	json.Unmarshal(body, &sess)
	if !sess.Authenticated || sess.DefaultBitrate != 192 || len(sess.Bitrates) != 3 {
		t.Errorf("session = %+v", sess)
	}

	env.do(t, http.MethodPost, "/api/logout", nil)
	resp, _ = env.do(t, http.MethodGet, "/api/folders", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("after logout = %d, want 401", resp.StatusCode)
	}
}

func TestLoginThrottled(t *testing.T) {
	env := newTestEnv(t, syncFunc(twoTrackSync))

	var last *http.Response
	for i := 0; i < 6; i++ {
		last, _ = env.do(t, http.MethodPost, "/api/login", LoginRequest{Code: "guess"})
	}
	if last.StatusCode != http.StatusTooManyRequests {
		t.Errorf("6th failed login = %d, want 429", last.StatusCode)
	}
}

func TestIndexCodeQueryLogsIn(t *testing.T) {
	env := newTestEnv(t, syncFunc(twoTrackSync))

	resp, body := env.do(t, http.MethodGet, "/?code="+testCode, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index = %d", resp.StatusCode)
	}
	if resp.Request.URL.RawQuery != "" {
		t.Errorf("code left in URL after redirect: %s", resp.Request.URL)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") || !strings.Contains(string(body), "tunevault") {
		t.Errorf("index not served: %s", resp.Header.Get("Content-Type"))
	}

	resp, _ = env.do(t, http.MethodGet, "/api/folders", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("?code= did not authenticate the session: %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/static/app.js", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("static asset = %d", resp.StatusCode)
	}
}

func TestLibraryEndpoints(t *testing.T) {
	env := newTestEnv(t, syncFunc(twoTrackSync))
	env.store.Put("Rock/a.mp3", []byte("AAAA"))
	env.store.Put("Rock/b.mp3", []byte("BB"))
	env.store.Put("Rock/notes.txt", []byte("x"))
	env.store.Put("Mi Música/c.mp3", []byte("C"))
	env.login(t)

	_, body := env.do(t, http.MethodGet, "/api/folders", nil)
	var folders map[string][]string
	json.Unmarshal(body, &folders)
	if got := folders["folders"]; len(got) != 2 || got[0] != "Mi Música" || got[1] != "Rock" {
		t.Errorf("folders = %v", got)
	}

	_, body = env.do(t, http.MethodGet, "/api/folders/Rock/songs", nil)
	var songs map[string][]SongResponse
	json.Unmarshal(body, &songs)
	if got := songs["songs"]; len(got) != 2 || got[0].Name != "a" || got[0].Key != "Rock/a.mp3" || got[0].Size != 4 {
		t.Errorf("songs = %+v", got)
	}

	_, body = env.do(t, http.MethodGet, "/api/folders/"+url.PathEscape("Mi Música")+"/songs", nil)
	json.Unmarshal(body, &songs)
	if len(songs["songs"]) != 1 {
		t.Errorf("unicode folder songs = %+v", songs)
	}

	for i := 0; i < 10; i++ {
		var song SongResponse
		_, body = env.do(t, http.MethodGet, "/api/folders/Rock/random?exclude="+url.QueryEscape("Rock/a.mp3"), nil)
		json.Unmarshal(body, &song)
		if song.Key != "Rock/b.mp3" {
			t.Fatalf("random with exclude returned %q", song.Key)
		}
	}

	resp, _ := env.do(t, http.MethodGet, "/api/folders/Empty/random", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("random in empty folder = %d, want 404", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodGet, "/api/songs/audio?key="+url.QueryEscape("Rock/a.mp3"), nil)
	if resp.StatusCode != http.StatusOK || string(body) != "AAAA" {
		t.Errorf("audio = %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("audio Content-Type = %q", ct)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/songs/audio?key="+url.QueryEscape("Rock/notes.txt"), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-mp3 key = %d, want 400", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/songs/audio?key="+url.QueryEscape("Rock/zzz.mp3"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing key = %d, want 404", resp.StatusCode)
	}
}

func TestSyncValidation(t *testing.T) {
	called := false
	env := newTestEnv(t, syncFunc(func(ctx context.Context, req pipeline.Request, hooks pipeline.Hooks) (pipeline.Stats, error) {
		called = true
		return pipeline.Stats{}, nil
	}))
	env.login(t)

	tests := []struct {
		name string
		req  SyncRequest
		want string
	}{
		{"not a playlist", SyncRequest{URL: "https://open.spotify.com/album/abc", Folder: "Mix"}, "playlist link"},
		{"empty folder", SyncRequest{URL: testPlaylist, Folder: ""}, "folder name"},
		{"unusable folder", SyncRequest{URL: testPlaylist, Folder: "###"}, "folder name"},
		{"bad bitrate", SyncRequest{URL: testPlaylist, Folder: "Mix", Bitrate: 256}, "bitrate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/api/sync", tt.req)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if !strings.Contains(string(body), tt.want) {
				t.Errorf("body = %s, want mention of %q", body, tt.want)
			}
		})
	}

	resp, _ := env.do(t, http.MethodPost, "/api/sync", "not an object")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body = %d", resp.StatusCode)
	}
	if called {
		t.Error("syncer ran for an invalid request")
	}
}

func TestSyncJobCompletes(t *testing.T) {
	requests := make(chan pipeline.Request, 1)
	env := newTestEnv(t, syncFunc(func(ctx context.Context, req pipeline.Request, hooks pipeline.Hooks) (pipeline.Stats, error) {
		requests <- req
		return twoTrackSync(ctx, req, hooks)
	}))
	env.login(t)

	resp, body := env.do(t, http.MethodPost, "/api/sync", SyncRequest{URL: " " + testPlaylist + " ", Folder: "My Mix! #1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("sync = %d %s", resp.StatusCode, body)
	}
	var created JobResponse
	json.Unmarshal(body, &created)
	if created.Folder != "My Mix 1" || created.Bitrate != 192 {
		t.Errorf("created job = %+v", created)
	}

	job := env.waitForJob(t, created.ID, isDone)
	if job.Status != StatusCompleted {
		t.Fatalf("job = %+v", job)
	}
	if job.Progress != 1 || job.Completed != 2 || job.Total != 2 || job.Stored != 2 {
		t.Errorf("job counters = %+v", job)
	}
	if job.Message != "Saved 2 of 2 songs into My Mix 1" {
		t.Errorf("message = %q", job.Message)
	}
	got := <-requests
	if got.PlaylistURL != testPlaylist || got.Folder != "My Mix 1" || got.Bitrate != 192 {
		t.Errorf("pipeline request = %+v", got)
	}

	_, body = env.do(t, http.MethodGet, "/api/jobs", nil)
	var jobs []JobResponse
	json.Unmarshal(body, &jobs)
	if len(jobs) != 1 || jobs[0].ID != created.ID {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestSyncJobFailureAndBusyFolder(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, syncFunc(func(ctx context.Context, req pipeline.Request, hooks pipeline.Hooks) (pipeline.Stats, error) {
		<-release
		return pipeline.Stats{}, fmt.Errorf("failed to resolve playlist: %w", &spotify.AuthError{StatusCode: 401, Err: errors.New("invalid_client")})
	}))
	env.login(t)

	_, body := env.do(t, http.MethodPost, "/api/sync", SyncRequest{URL: testPlaylist, Folder: "Mix", Bitrate: 320})
	var created JobResponse
	json.Unmarshal(body, &created)

	resp, body := env.do(t, http.MethodPost, "/api/sync", SyncRequest{URL: testPlaylist, Folder: "Mix"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second sync into a busy folder = %d %s, want 409", resp.StatusCode, body)
	}

	close(release)
	job := env.waitForJob(t, created.ID, isDone)
	if job.Status != StatusFailed || !strings.Contains(job.Error, "401") {
		t.Errorf("job = %+v", job)
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t, syncFunc(func(ctx context.Context, req pipeline.Request, hooks pipeline.Hooks) (pipeline.Stats, error) {
		hooks.OnTracksResolved(5)
		<-ctx.Done()
		return pipeline.Stats{}, ctx.Err()
	}))
	env.login(t)

	_, body := env.do(t, http.MethodPost, "/api/sync", SyncRequest{URL: testPlaylist, Folder: "Mix"})
	var created JobResponse
	json.Unmarshal(body, &created)
	env.waitForJob(t, created.ID, func(j JobResponse) bool { return j.Total == 5 })

	resp, _ := env.do(t, http.MethodPost, "/api/jobs/"+created.ID+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel = %d", resp.StatusCode)
	}

	job := env.waitForJob(t, created.ID, isDone)
	if job.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", job.Status)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/jobs/job_missing/cancel", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel missing = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketStreamsJob(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, syncFunc(func(ctx context.Context, req pipeline.Request, hooks pipeline.Hooks) (pipeline.Stats, error) {
		<-release
		return twoTrackSync(ctx, req, hooks)
	}))
	env.login(t)

	_, body := env.do(t, http.MethodPost, "/api/sync", SyncRequest{URL: testPlaylist, Folder: "Mix"})
	var created JobResponse
	json.Unmarshal(body, &created)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?job_id=" + created.ID
	dialer := websocket.Dialer{Jar: env.jar, HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp %v)", err, resp)
	}
	defer conn.Close()

	close(release)

	var last JobResponse
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := json.Unmarshal(data, &last); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if last.ID != created.ID {
			t.Errorf("message for job %s", last.ID)
		}
	}

	if last.Status != StatusCompleted || last.Stored != 2 {
		t.Errorf("last streamed state = %+v", last)
	}
}

func TestWebSocketUnknownJob(t *testing.T) {
	env := newTestEnv(t, syncFunc(twoTrackSync))
	env.login(t)

	resp, _ := env.do(t, http.MethodGet, "/ws?job_id=job_nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job = %d, want 404", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/ws", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing job_id = %d, want 400", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", pipeline.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("x: %w", spotify.ErrInvalidReference), http.StatusBadRequest},
		{fmt.Errorf("x: %w", synclock.ErrBusy), http.StatusConflict},
		{&spotify.AuthError{StatusCode: 400}, http.StatusBadGateway},
		{&spotify.UpstreamError{StatusCode: 500}, http.StatusBadGateway},
		{&library.StorageError{Op: "list folders", Err: errors.New("timeout")}, http.StatusBadGateway},
		{&library.StorageError{Op: "read", Err: library.ErrNotFound}, http.StatusNotFound},
		{ErrTooManyAttempts, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	sessionCookie = "tunevault_session"
	sessionTTL    = 24 * time.Hour
)

var (
	ErrWrongCode       = errors.New("wrong access code")
	ErrTooManyAttempts = errors.New("too many login attempts, try again later")
	ErrUnauthorized    = errors.New("access code required")
)

// Session is a browser session. Handlers get a copy; changes go through
// SessionStore.
type Session struct {
	ID            string
	Authenticated bool
	CreatedAt     time.Time
	LastSeen      time.Time
}

// SessionStore keeps sessions in memory, keyed by cookie value.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	secure   bool
	now      func() time.Time
}

// NewSessionStore creates an empty store. secure marks cookies HTTPS-only.
func NewSessionStore(secure bool) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		secure:   secure,
		now:      time.Now,
	}
}

// Resolve returns the request's session, starting a new one (and setting
// the cookie) when the request has none or an expired one.
func (st *SessionStore) Resolve(w http.ResponseWriter, r *http.Request) Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	if c, err := r.Cookie(sessionCookie); err == nil {
		if sess, ok := st.sessions[c.Value]; ok && now.Sub(sess.LastSeen) < sessionTTL {
			sess.LastSeen = now
			return *sess
		}
	}

	sess := &Session{ID: uuid.NewString(), CreatedAt: now, LastSeen: now}
	st.sessions[sess.ID] = sess
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return *sess
}

// SetAuthenticated marks a session as having passed the gate, or not.
func (st *SessionStore) SetAuthenticated(id string, ok bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, found := st.sessions[id]; found {
		sess.Authenticated = ok
	}
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// StartCleanup drops idle sessions periodically until ctx is cancelled.
func (st *SessionStore) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.cleanup()
			}
		}
	}()
}

func (st *SessionStore) cleanup() {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := st.now().Add(-sessionTTL)
	for id, sess := range st.sessions {
		if sess.LastSeen.Before(cutoff) {
			delete(st.sessions, id)
		}
	}
}

// Gate checks access codes. Failed attempts draw from a shared token
// bucket; once it is empty every attempt is refused until it refills.
type Gate struct {
	code    []byte
	limiter *rate.Limiter
}

// NewGate allows burst failed attempts, refilling one every interval.
func NewGate(code string, interval time.Duration, burst int) *Gate {
	return &Gate{
		code:    []byte(code),
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

// Check compares code with the configured access code in constant time.
func (g *Gate) Check(code string) error {
	if g.limiter.Tokens() < 1 {
		return ErrTooManyAttempts
	}
	if subtle.ConstantTimeCompare([]byte(code), g.code) == 1 {
		return nil
	}
	g.limiter.Allow()
	return ErrWrongCode
}

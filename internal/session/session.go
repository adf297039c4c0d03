// Package session holds runtime state for the viewer and the provider session.
package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// VideoWebRTC relays device frames over a WebRTC data channel.
const VideoWebRTC = "webrtc"

// VideoMJPEG relays device frames as an MJPEG stream.
const VideoMJPEG = "mjpeg"

// Expiry records why the provider session stopped working.
type Expiry struct {
	UDID   string    `json:"udid"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Snapshot represents a read-only view of the current session state.
type Snapshot struct {
	Authenticated bool    `json:"authenticated"`
	HasToken      bool    `json:"hasToken"`
	VideoMode     string  `json:"videoMode"`
	Expired       *Expiry `json:"expired,omitempty"`
}

// Session holds runtime state for the active viewer.
type Session struct {
	mu            sync.RWMutex
	passwordHash  []byte
	authenticated bool
	token         string
	expired       *Expiry
	videoMode     string
}

// New returns an initialized session guarded by password.
func New(password string) (*Session, error) {
	if password == "" {
		return nil, errors.New("viewer password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash viewer password")
	}
	return &Session{
		passwordHash: hash,
		videoMode:    VideoMJPEG,
	}, nil
}

// Authenticate validates the password and marks the session as authenticated.
func (s *Session) Authenticate(pass string) bool {
	ok := pass != "" && bcrypt.CompareHashAndPassword(s.passwordHash, []byte(pass)) == nil
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = ok
	return ok
}

// Logout clears authentication state.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
}

// IsAuthenticated reports whether the session is authenticated.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// SetToken stores a fresh provider token and clears any expiry.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expired = nil
}

// Token returns the provider token, or "" when none is set.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// MarkExpired records that the provider rejected a request for udid.
// The token is kept so the viewer decides whether to refresh or leave.
func (s *Session) MarkExpired(udid, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = &Expiry{UDID: udid, Reason: reason, At: time.Now()}
}

// Expired returns the last expiry, if the session has not been refreshed since.
func (s *Session) Expired() (Expiry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.expired == nil {
		return Expiry{}, false
	}
	return *s.expired, true
}

// SetVideoMode sets which transport viewers use for frames.
func (s *Session) SetVideoMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch mode {
	case VideoWebRTC:
		s.videoMode = VideoWebRTC
	default:
		s.videoMode = VideoMJPEG
	}
}

// VideoMode returns the active frame transport.
func (s *Session) VideoMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.videoMode == "" {
		return VideoMJPEG
	}
	return s.videoMode
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Authenticated: s.authenticated,
		HasToken:      s.token != "",
		VideoMode:     s.videoMode,
	}
	if s.expired != nil {
		e := *s.expired
		snap.Expired = &e
	}
	return snap
}

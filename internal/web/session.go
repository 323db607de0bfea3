package web

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

type session struct {
	token   string
	userID  uint
	expires time.Time
}

// sessionStore keeps dashboard logins in memory. Sessions do not survive a
// restart.
type sessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]session
}

func newSessionStore(ttl time.Duration) *sessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &sessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]session{},
	}
}

func (s *sessionStore) Create(userID uint) (session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return session{}, err
	}

	sess := session{
		token:   hex.EncodeToString(buf),
		userID:  userID,
		expires: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.sessions[sess.token] = sess
	return sess, nil
}

func (s *sessionStore) Get(token string) (session, bool) {
	if token == "" {
		return session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return session{}, false
	}
	if !s.now().Before(sess.expires) {
		delete(s.sessions, token)
		return session{}, false
	}
	return sess, true
}

func (s *sessionStore) Delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func (s *sessionStore) sweepLocked() {
	now := s.now()
	for token, sess := range s.sessions {
		if !now.Before(sess.expires) {
			delete(s.sessions, token)
		}
	}
}

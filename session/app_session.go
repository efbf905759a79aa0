package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppSessionStore keeps browser sessions in the backend with a sliding
// inactivity TTL. Every session id is also indexed per user so all of a
// user's sessions can be revoked at once.
type AppSessionStore struct {
	be          Backend
	ttl         time.Duration
	rotateAfter time.Duration
	now         func() time.Time
}

func NewAppSessionStore(be Backend, ttl, rotateAfter time.Duration) *AppSessionStore {
	return &AppSessionStore{be: be, ttl: ttl, rotateAfter: rotateAfter, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *AppSessionStore) SetClock(now func() time.Time) { s.now = now }

func (s *AppSessionStore) TTL() time.Duration { return s.ttl }

type AppSession struct {
	UserID    string `json:"uid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func key(id string) string         { return fmt.Sprintf("app:sess:%s", id) }
func userSetKey(uid string) string { return fmt.Sprintf("app:user_sessions:%s", uid) }

// Create starts a new session for userID and returns its id.
func (s *AppSessionStore) Create(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()
	if err := s.put(ctx, id, userID, s.now()); err != nil {
		return "", err
	}
	return id, nil
}

func (s *AppSessionStore) put(ctx context.Context, id, userID string, issued time.Time) error {
	now := s.now()
	b, err := json.Marshal(AppSession{
		UserID:    userID,
		IssuedAt:  issued.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return err
	}
	if err := s.be.Set(ctx, key(id), b, s.ttl); err != nil {
		return err
	}
	return s.be.SAdd(ctx, userSetKey(userID), id, s.ttl)
}

// Get returns ErrNotFound once the session expired or was revoked.
func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	b, err := s.be.Get(ctx, key(id))
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := json.Unmarshal(b, &as); err != nil {
		return nil, err
	}
	return &as, nil
}

// Touch extends the inactivity window. When the session is older than the
// rotation age it is replaced by a fresh id, which is returned; otherwise
// the same id comes back.
func (s *AppSessionStore) Touch(ctx context.Context, id string, as *AppSession) (string, error) {
	now := s.now()
	if s.rotateAfter > 0 && now.Sub(time.Unix(as.IssuedAt, 0)) >= s.rotateAfter {
		newID := uuid.NewString()
		if err := s.put(ctx, newID, as.UserID, now); err != nil {
			return id, err
		}
		if err := s.Delete(ctx, id); err != nil {
			return newID, err
		}
		return newID, nil
	}
	if err := s.put(ctx, id, as.UserID, time.Unix(as.IssuedAt, 0)); err != nil {
		return id, err
	}
	return id, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	as, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := s.be.Del(ctx, key(id)); err != nil {
		return err
	}
	if as != nil {
		return s.be.SRem(ctx, userSetKey(as.UserID), id)
	}
	return nil
}

// RevokeAllForUser drops every session of userID; used when the account is
// deleted or disabled.
func (s *AppSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.be.SMembers(ctx, userSetKey(userID))
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, sid := range ids {
		keys = append(keys, key(sid))
	}
	keys = append(keys, userSetKey(userID))
	return s.be.Del(ctx, keys...)
}

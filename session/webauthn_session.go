package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Store holds in-flight WebAuthn ceremony data between begin and finish.
type Store struct {
	be  Backend
	ttl time.Duration
}

func NewStore(be Backend, ttl time.Duration) *Store { return &Store{be: be, ttl: ttl} }

func regKey(userID string) string { return fmt.Sprintf("webauthn:reg:%s", userID) }
func authKey(sid string) string   { return fmt.Sprintf("webauthn:auth:%s", sid) }

func (s *Store) save(ctx context.Context, k string, sd *webauthn.SessionData) error {
	b, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return s.be.Set(ctx, k, b, s.ttl)
}

func (s *Store) load(ctx context.Context, k string) (*webauthn.SessionData, error) {
	b, err := s.be.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	var sd webauthn.SessionData
	if err := json.Unmarshal(b, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

func (s *Store) SaveReg(ctx context.Context, userID string, sd *webauthn.SessionData) error {
	return s.save(ctx, regKey(userID), sd)
}

func (s *Store) LoadReg(ctx context.Context, userID string) (*webauthn.SessionData, error) {
	return s.load(ctx, regKey(userID))
}

func (s *Store) DelReg(ctx context.Context, userID string) { _ = s.be.Del(ctx, regKey(userID)) }

func (s *Store) SaveAuth(ctx context.Context, sid string, sd *webauthn.SessionData) error {
	return s.save(ctx, authKey(sid), sd)
}

func (s *Store) LoadAuth(ctx context.Context, sid string) (*webauthn.SessionData, error) {
	return s.load(ctx, authKey(sid))
}

func (s *Store) DelAuth(ctx context.Context, sid string) { _ = s.be.Del(ctx, authKey(sid)) }

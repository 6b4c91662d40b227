// Package backchannel implements OIDC back-channel logout: when a login
// session ends, every relying party that registered a back-channel logout
// URI is notified server-to-server with a signed logout token.
package backchannel

import (
	"errors"
	"sync"

	"github.com/segmentio/ksuid"
)

// Association is the ephemeral per-login-session record that drives
// back-channel logout. It is created at successful login, consulted and
// discarded at logout.
type Association struct {
	ID                   string `json:"id"`
	ClientID             string `json:"client_id"`
	UserID               string `json:"user_id"`
	SessionID            string `json:"session_id,omitempty"`
	BackChannelLogoutURI string `json:"back_channel_logout_uri,omitempty"`
}

type AssociationStore interface {
	SaveAssociation(a *Association) error
	AssociationsBySession(sessionID string) ([]*Association, error)
	DeleteAssociationsBySession(sessionID string) error
}

type memoryAssociationStore struct {
	associations []*Association
	lock         sync.RWMutex
}

func NewMemoryAssociationStore() AssociationStore {
	return &memoryAssociationStore{
		associations: make([]*Association, 0, 16),
	}
}

func (s *memoryAssociationStore) SaveAssociation(a *Association) error {
	if a.ClientID == "" || a.UserID == "" {
		return errors.New("association requires client_id and user_id")
	}
	if a.ID == "" {
		a.ID = ksuid.New().String()
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.associations = append(s.associations, a)
	return nil
}

func (s *memoryAssociationStore) AssociationsBySession(sessionID string) ([]*Association, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	matches := make([]*Association, 0)
	for _, a := range s.associations {
		if a.SessionID == sessionID {
			matches = append(matches, a)
		}
	}
	return matches, nil
}

func (s *memoryAssociationStore) DeleteAssociationsBySession(sessionID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	remaining := s.associations[:0]
	for _, a := range s.associations {
		if a.SessionID != sessionID {
			remaining = append(remaining, a)
		}
	}
	s.associations = remaining
	return nil
}

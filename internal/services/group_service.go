package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// GroupService runs single group operations through one session.
type GroupService struct {
	sessions *SessionRegistry
	backend  Backend
	log      *zap.Logger
}

func NewGroupService(sessions *SessionRegistry, backend Backend, log *zap.Logger) *GroupService {
	return &GroupService{sessions: sessions, backend: backend, log: log}
}

func (s *GroupService) JoinGroup(ctx context.Context, userID, sessionID uuid.UUID, groupRef string) (*GroupInfo, error) {
	groupRef = strings.TrimSpace(groupRef)
	if groupRef == "" {
		return nil, validationError("group is required")
	}
	creds, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	info, err := s.backend.JoinGroup(ctx, creds, groupRef)
	if err != nil {
		s.log.Warn("join group failed", zap.String("session_id", sessionID.String()), zap.String("group", groupRef), zap.Error(err))
		return nil, err
	}
	s.log.Info("joined group", zap.String("session_id", sessionID.String()), zap.String("group_id", info.GroupID))
	return info, nil
}

func (s *GroupService) SearchGroups(ctx context.Context, userID, sessionID uuid.UUID, query string, limit int) ([]GroupInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationError("query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	creds, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.backend.SearchGroups(ctx, creds, query, limit)
}

func (s *GroupService) session(ctx context.Context, userID, sessionID uuid.UUID) (SessionCredentials, error) {
	if sessionID == uuid.Nil {
		return SessionCredentials{}, validationError("session_id is required")
	}
	sessions, err := s.sessions.ResolveActive(ctx, userID, []uuid.UUID{sessionID})
	if err != nil {
		return SessionCredentials{}, err
	}
	return CredentialsOf(sessions[0]), nil
}

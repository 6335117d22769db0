package services

import (
	"context"
	"fmt"

	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionStore interface {
	ListByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
}

// SessionRegistry resolves which of a caller's sessions are usable right now.
type SessionRegistry struct {
	store SessionStore
	log   *zap.Logger
}

func NewSessionRegistry(store SessionStore, log *zap.Logger) *SessionRegistry {
	return &SessionRegistry{store: store, log: log}
}

// ResolveActive returns the requested sessions, in request order, when every
// one of them belongs to userID, is active and carries credentials. Anything
// less is an error: ErrNoActiveSessions when none qualify,
// ErrPartialSessionAvailability otherwise.
func (r *SessionRegistry) ResolveActive(ctx context.Context, userID uuid.UUID, sessionIDs []uuid.UUID) ([]models.Session, error) {
	requested := uniqueIDs(sessionIDs)
	if len(requested) == 0 {
		return nil, validationError("at least one session id is required")
	}

	found, err := r.store.ListByIDs(ctx, userID, requested)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	byID := make(map[uuid.UUID]models.Session, len(found))
	for _, s := range found {
		if s.UserID == userID && s.IsActive() && s.HasCredentials() {
			byID[s.ID] = s
		}
	}

	resolved := make([]models.Session, 0, len(requested))
	for _, id := range requested {
		if s, ok := byID[id]; ok {
			resolved = append(resolved, s)
		}
	}

	if len(resolved) == 0 {
		return nil, ErrNoActiveSessions
	}
	if len(resolved) != len(requested) {
		r.log.Info("partial session availability",
			zap.String("user_id", userID.String()),
			zap.Int("requested", len(requested)),
			zap.Int("active", len(resolved)),
		)
		return nil, fmt.Errorf("%w: %d of %d active", ErrPartialSessionAvailability, len(resolved), len(requested))
	}
	return resolved, nil
}

func (r *SessionRegistry) List(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	return r.store.ListByUser(ctx, userID)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

package services

import (
	"context"

	"github.com/anassewp/telegram-backend/internal/distribution"
	"github.com/anassewp/telegram-backend/internal/quota"
	"github.com/google/uuid"
)

// runSequential dispatches an assignment one item at a time, sleeping each
// item's delay first. An item's failure never stops the loop. When the wait is
// interrupted, or proceed reports false, the items not yet dispatched are
// returned as deferred.
func runSequential(
	ctx context.Context,
	a distribution.Assignment,
	proceed func(ctx context.Context) bool,
	exec func(ctx context.Context, item distribution.WorkItem) ItemResult,
) ([]ItemResult, []string) {
	results := make([]ItemResult, 0, len(a.Items))
	for i, item := range a.Items {
		if err := distribution.Wait(ctx, item.Delay); err != nil {
			return results, pending(a.Items[i:])
		}
		if i > 0 && proceed != nil && !proceed(ctx) {
			return results, pending(a.Items[i:])
		}
		results = append(results, exec(ctx, item))
	}
	return results, nil
}

func pending(items []distribution.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Target
	}
	return out
}

// quotaHold is the daily quota reserved for one plan.
type quotaHold struct {
	granted  map[uuid.UUID]int
	releases map[uuid.UUID]quota.ReleaseFunc
}

// holdQuota reserves the daily quota for every assignment of plan before
// anything is dispatched. Items a session was not granted are deferred.
func holdQuota(ctx context.Context, q QuotaTracker, plan *distribution.Plan, dailyCap int) *quotaHold {
	h := &quotaHold{
		granted:  make(map[uuid.UUID]int, len(plan.Assignments)),
		releases: make(map[uuid.UUID]quota.ReleaseFunc, len(plan.Assignments)),
	}
	for _, a := range plan.Assignments {
		if len(a.Items) == 0 {
			continue
		}
		granted, release := q.Reserve(ctx, a.SessionID, len(a.Items), dailyCap)
		h.granted[a.SessionID] = granted
		h.releases[a.SessionID] = release
		if granted < len(a.Items) {
			plan.Limit(a.SessionID, granted)
		}
	}
	return h
}

// settle gives back the part of each session's grant it did not dispatch.
func (h *quotaHold) settle(ctx context.Context, used map[uuid.UUID]int) {
	ctx = context.WithoutCancel(ctx)
	for id, granted := range h.granted {
		if unused := granted - used[id]; unused > 0 {
			h.releases[id](ctx, unused)
		}
	}
}

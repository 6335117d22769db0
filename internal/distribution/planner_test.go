package distribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTargets(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("t%d", i)
	}
	return out
}

func makeSessions(m int) []uuid.UUID {
	out := make([]uuid.UUID, m)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func targetsOf(a Assignment) []string {
	out := make([]string, len(a.Items))
	for i, it := range a.Items {
		out[i] = it.Target
	}
	return out
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"equal", "round_robin", "random", "weighted"} {
		got, err := ParseStrategy(s)
		require.NoError(t, err)
		assert.Equal(t, Strategy(s), got)
	}

	got, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyEqual, got)

	_, err = ParseStrategy("fastest")
	assert.True(t, errors.Is(err, ErrUnknownStrategy))
}

func TestPlan_EqualSizes(t *testing.T) {
	sessions := makeSessions(3)
	plan, err := NewPlanner(1).Plan(makeTargets(10), sessions, Params{Strategy: StrategyEqual})
	require.NoError(t, err)

	require.Len(t, plan.Assignments, 3)
	assert.Equal(t, []string{"t0", "t1", "t2", "t3"}, targetsOf(plan.Assignments[0]))
	assert.Equal(t, []string{"t4", "t5", "t6"}, targetsOf(plan.Assignments[1]))
	assert.Equal(t, []string{"t7", "t8", "t9"}, targetsOf(plan.Assignments[2]))
	for i, a := range plan.Assignments {
		assert.Equal(t, sessions[i], a.SessionID)
	}
}

func TestPlan_RoundRobin(t *testing.T) {
	plan, err := NewPlanner(1).Plan(makeTargets(5), makeSessions(2), Params{Strategy: StrategyRoundRobin})
	require.NoError(t, err)

	assert.Equal(t, []string{"t0", "t2", "t4"}, targetsOf(plan.Assignments[0]))
	assert.Equal(t, []string{"t1", "t3"}, targetsOf(plan.Assignments[1]))
}

func TestPlan_EveryItemExactlyOnce(t *testing.T) {
	strategies := []Strategy{StrategyEqual, StrategyRoundRobin, StrategyRandom, StrategyWeighted}
	for _, s := range strategies {
		for n := 1; n <= 12; n++ {
			for m := 1; m <= 5; m++ {
				targets := makeTargets(n)
				plan, err := NewPlanner(int64(n*m)).Plan(targets, makeSessions(m), Params{Strategy: s})
				require.NoError(t, err)

				var seen []string
				for _, a := range plan.Assignments {
					seen = append(seen, targetsOf(a)...)
				}
				sort.Strings(seen)
				want := append([]string(nil), targets...)
				sort.Strings(want)
				assert.Equal(t, want, seen, "strategy=%s n=%d m=%d", s, n, m)
			}
		}
	}
}

func TestPlan_RandomIsSeeded(t *testing.T) {
	sessions := makeSessions(3)
	targets := makeTargets(20)

	a, err := NewPlanner(7).Plan(targets, sessions, Params{Strategy: StrategyRandom})
	require.NoError(t, err)
	b, err := NewPlanner(7).Plan(targets, sessions, Params{Strategy: StrategyRandom})
	require.NoError(t, err)

	assert.Equal(t, a.Assignments, b.Assignments)
	assert.Len(t, a.Assignments[0].Items, 7)
	assert.Len(t, a.Assignments[1].Items, 7)
	assert.Len(t, a.Assignments[2].Items, 6)
}

func TestPlan_Weighted(t *testing.T) {
	sessions := makeSessions(2)

	t.Run("proportional", func(t *testing.T) {
		weights := map[uuid.UUID]float64{sessions[0]: 3, sessions[1]: 1}
		plan, err := NewPlanner(1).Plan(makeTargets(8), sessions, Params{Strategy: StrategyWeighted, Weights: weights})
		require.NoError(t, err)
		assert.Len(t, plan.Assignments[0].Items, 6)
		assert.Len(t, plan.Assignments[1].Items, 2)
	})

	t.Run("uniform falls back to equal", func(t *testing.T) {
		weights := map[uuid.UUID]float64{sessions[0]: 0.5, sessions[1]: 0.5}
		plan, err := NewPlanner(1).Plan(makeTargets(5), sessions, Params{Strategy: StrategyWeighted, Weights: weights})
		require.NoError(t, err)
		assert.Equal(t, []string{"t0", "t1", "t2"}, targetsOf(plan.Assignments[0]))
		assert.Equal(t, []string{"t3", "t4"}, targetsOf(plan.Assignments[1]))
	})

	t.Run("absent weights fall back to equal", func(t *testing.T) {
		plan, err := NewPlanner(1).Plan(makeTargets(4), sessions, Params{Strategy: StrategyWeighted})
		require.NoError(t, err)
		assert.Len(t, plan.Assignments[0].Items, 2)
		assert.Len(t, plan.Assignments[1].Items, 2)
	})
}

func TestPlan_CapDefersExcess(t *testing.T) {
	sessions := makeSessions(1)
	plan, err := NewPlanner(1).Plan(makeTargets(5), sessions, Params{
		Strategy: StrategyEqual,
		Limits:   Limits{MaxPerSession: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"t0", "t1"}, targetsOf(plan.Assignments[0]))
	assert.Equal(t, []string{"t2", "t3", "t4"}, plan.Assignments[0].Deferred)
	assert.Equal(t, []string{"t2", "t3", "t4"}, plan.Deferred)
	assert.Equal(t, 2, plan.Scheduled())
}

func TestPlan_CapacityOverride(t *testing.T) {
	sessions := makeSessions(2)
	plan, err := NewPlanner(1).Plan(makeTargets(6), sessions, Params{
		Strategy: StrategyRoundRobin,
		Limits: Limits{
			MaxPerSession: 3,
			Capacity:      map[uuid.UUID]int{sessions[1]: 0},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"t0", "t2", "t4"}, targetsOf(plan.Assignments[0]))
	assert.Empty(t, plan.Assignments[1].Items)
	assert.Equal(t, []string{"t1", "t3", "t5"}, plan.Deferred)
}

func TestPlan_Limit(t *testing.T) {
	sessions := makeSessions(2)
	plan, err := NewPlanner(1).Plan(makeTargets(7), sessions, Params{
		Strategy: StrategyRoundRobin,
		Limits:   Limits{MaxPerSession: 3},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"t6"}, plan.Deferred)

	plan.Limit(sessions[1], 1)
	assert.Equal(t, []string{"t0", "t2", "t4"}, targetsOf(plan.Assignments[0]))
	assert.Equal(t, []string{"t1"}, targetsOf(plan.Assignments[1]))
	assert.Equal(t, []string{"t3", "t5"}, plan.Assignments[1].Deferred)
	assert.Equal(t, []string{"t3", "t5", "t6"}, plan.Deferred)
	assert.Equal(t, 4, plan.Scheduled())

	plan.Limit(sessions[0], 5)
	assert.Equal(t, 4, plan.Scheduled())

	plan.Limit(sessions[0], 0)
	assert.Empty(t, plan.Assignments[0].Items)
	assert.Equal(t, []string{"t0", "t2", "t3", "t4", "t5", "t6"}, plan.Deferred)
}

func TestPlan_Delays(t *testing.T) {
	sessions := makeSessions(2)
	plan, err := NewPlanner(3).Plan(makeTargets(8), sessions, Params{
		Strategy: StrategyEqual,
		Limits:   Limits{DelayMin: 2 * time.Second, DelayMax: 5 * time.Second},
	})
	require.NoError(t, err)

	for _, a := range plan.Assignments {
		for j, it := range a.Items {
			if j == 0 {
				assert.Zero(t, it.Delay, "first item of a sublist is not delayed")
				continue
			}
			assert.GreaterOrEqual(t, it.Delay, 2*time.Second)
			assert.LessOrEqual(t, it.Delay, 5*time.Second)
		}
	}
}

func TestPlan_Validation(t *testing.T) {
	p := NewPlanner(1)

	_, err := p.Plan(makeTargets(3), makeSessions(2), Params{Strategy: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = p.Plan(makeTargets(3), nil, Params{Strategy: StrategyEqual})
	assert.ErrorIs(t, err, ErrNoSessions)

	_, err = p.Plan(makeTargets(3), makeSessions(1), Params{
		Strategy: StrategyEqual,
		Limits:   Limits{DelayMin: 5 * time.Second, DelayMax: time.Second},
	})
	assert.ErrorIs(t, err, ErrInvalidDelay)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}

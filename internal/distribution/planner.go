// Package distribution assigns target items to sessions and annotates each
// assignment with its pacing delay.
package distribution

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Strategy string

const (
	StrategyEqual      Strategy = "equal"
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
	StrategyWeighted   Strategy = "weighted"
)

var (
	ErrUnknownStrategy = errors.New("unknown distribution strategy")
	ErrNoSessions      = errors.New("no sessions to distribute over")
	ErrInvalidDelay    = errors.New("delay range must satisfy 0 <= min <= max")
)

// ParseStrategy maps a request tag to a Strategy. An empty tag means equal.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyEqual, nil
	case StrategyEqual, StrategyRoundRobin, StrategyRandom, StrategyWeighted:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("%w: %q (allowed: equal, round_robin, random, weighted)", ErrUnknownStrategy, s)
}

type Limits struct {
	DelayMin time.Duration
	DelayMax time.Duration
	// MaxPerSession caps each session's sublist; <= 0 disables the cap.
	MaxPerSession int
	// Capacity overrides MaxPerSession for the listed sessions, e.g. with the
	// quota left for today.
	Capacity map[uuid.UUID]int
}

type Params struct {
	Strategy Strategy
	Limits
	Weights map[uuid.UUID]float64
}

// WorkItem is one target bound to one session for one attempt.
type WorkItem struct {
	Target    string        `json:"target"`
	SessionID uuid.UUID     `json:"session_id"`
	Position  int           `json:"position"`
	Delay     time.Duration `json:"delay"`
}

type Assignment struct {
	SessionID uuid.UUID  `json:"session_id"`
	Items     []WorkItem `json:"items"`
	Deferred  []string   `json:"deferred,omitempty"`
}

type Plan struct {
	Strategy    Strategy     `json:"strategy"`
	Assignments []Assignment `json:"assignments"`
	// Deferred holds items cut by a session cap, in input order. They are
	// left for a later invocation.
	Deferred []string `json:"deferred,omitempty"`

	targets     []string
	deferredPos []int
}

// Scheduled returns the number of items that were assigned, not deferred.
func (p *Plan) Scheduled() int {
	n := 0
	for _, a := range p.Assignments {
		n += len(a.Items)
	}
	return n
}

type Planner struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPlanner returns a planner whose shuffles and delays are reproducible for
// a given seed.
func NewPlanner(seed int64) *Planner {
	return &Planner{rnd: rand.New(rand.NewSource(seed))}
}

// Plan splits targets over sessions. Sessions keep the given order; every
// target ends up either in exactly one assignment or in Deferred.
func (p *Planner) Plan(targets []string, sessions []uuid.UUID, params Params) (*Plan, error) {
	strategy, err := ParseStrategy(string(params.Strategy))
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNoSessions
	}
	if params.DelayMin < 0 || params.DelayMax < params.DelayMin {
		return nil, ErrInvalidDelay
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var buckets [][]int
	switch strategy {
	case StrategyRoundRobin:
		buckets = roundRobinSplit(len(targets), len(sessions))
	case StrategyRandom:
		buckets = equalSplit(len(targets), len(sessions))
		perm := p.rnd.Perm(len(targets))
		for _, b := range buckets {
			for i := range b {
				b[i] = perm[b[i]]
			}
		}
	case StrategyWeighted:
		buckets = weightedSplit(len(targets), sessions, params.Weights)
	default:
		buckets = equalSplit(len(targets), len(sessions))
	}

	plan := &Plan{Strategy: strategy, Assignments: make([]Assignment, len(sessions)), targets: targets}
	for i, sessionID := range sessions {
		a := Assignment{SessionID: sessionID, Items: []WorkItem{}}
		limit, capped := params.capacityFor(sessionID)
		for j, pos := range buckets[i] {
			if capped && j >= limit {
				a.Deferred = append(a.Deferred, targets[pos])
				plan.deferredPos = append(plan.deferredPos, pos)
				continue
			}
			item := WorkItem{Target: targets[pos], SessionID: sessionID, Position: pos}
			if j > 0 {
				item.Delay = p.delay(params.DelayMin, params.DelayMax)
			}
			a.Items = append(a.Items, item)
		}
		plan.Assignments[i] = a
	}

	plan.sortDeferred()
	return plan, nil
}

// Limit keeps the first n items of the session's assignment and defers the
// rest, e.g. when the session was granted less quota than it was assigned.
func (p *Plan) Limit(sessionID uuid.UUID, n int) {
	n = max(n, 0)
	for i := range p.Assignments {
		a := &p.Assignments[i]
		if a.SessionID != sessionID || len(a.Items) <= n {
			continue
		}
		cut := make([]string, 0, len(a.Items)-n)
		for _, it := range a.Items[n:] {
			cut = append(cut, it.Target)
			p.deferredPos = append(p.deferredPos, it.Position)
		}
		a.Items = a.Items[:n:n]
		a.Deferred = append(cut, a.Deferred...)
	}
	p.sortDeferred()
}

func (p *Plan) sortDeferred() {
	sort.Ints(p.deferredPos)
	p.Deferred = nil
	for _, pos := range p.deferredPos {
		p.Deferred = append(p.Deferred, p.targets[pos])
	}
}

func (l Limits) capacityFor(sessionID uuid.UUID) (int, bool) {
	if v, ok := l.Capacity[sessionID]; ok {
		return max(v, 0), true
	}
	if l.MaxPerSession > 0 {
		return l.MaxPerSession, true
	}
	return 0, false
}

// equalSplit gives every session n/m items and the first n%m sessions one more.
func equalSplit(n, m int) [][]int {
	sizes := make([]int, m)
	for i := range sizes {
		sizes[i] = n / m
		if i < n%m {
			sizes[i]++
		}
	}
	return contiguous(sizes)
}

func roundRobinSplit(n, m int) [][]int {
	buckets := make([][]int, m)
	for i := 0; i < n; i++ {
		buckets[i%m] = append(buckets[i%m], i)
	}
	return buckets
}

// weightedSplit sizes contiguous chunks proportionally to the weights using
// the largest remainder method. Missing, non-positive or uniform weights fall
// back to equalSplit.
func weightedSplit(n int, sessions []uuid.UUID, weights map[uuid.UUID]float64) [][]int {
	m := len(sessions)
	if len(weights) == 0 {
		return equalSplit(n, m)
	}
	ws := make([]float64, m)
	total := 0.0
	uniform := true
	for i, id := range sessions {
		w, ok := weights[id]
		if !ok || w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return equalSplit(n, m)
		}
		ws[i] = w
		total += w
		if i > 0 && math.Abs(w-ws[0]) > 1e-9 {
			uniform = false
		}
	}
	if uniform {
		return equalSplit(n, m)
	}

	sizes := make([]int, m)
	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, m)
	assigned := 0
	for i, w := range ws {
		exact := float64(n) * w / total
		sizes[i] = int(math.Floor(exact))
		assigned += sizes[i]
		rems[i] = rem{idx: i, frac: exact - float64(sizes[i])}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for i := 0; assigned < n; i++ {
		sizes[rems[i%m].idx]++
		assigned++
	}
	return contiguous(sizes)
}

func contiguous(sizes []int) [][]int {
	buckets := make([][]int, len(sizes))
	next := 0
	for i, size := range sizes {
		buckets[i] = make([]int, size)
		for j := range buckets[i] {
			buckets[i][j] = next
			next++
		}
	}
	return buckets
}

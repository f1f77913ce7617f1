package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/arnavshah/turni-api-go/pkg/models"
	"go.uber.org/zap"
)

// DefaultHorizonMonths is how far past today a writable range may reach
const DefaultHorizonMonths = 3

// Store is the persistence the engine works against
type Store interface {
	Stations(ctx context.Context, f models.Filter) ([]models.StationSlots, error)
	Availability(ctx context.Context, f models.Filter, slotIDs []uint) (models.AvailabilityIndex, error)
	WindowCounts(ctx context.Context, f models.Filter) (map[uint]int, error)
	AssignedCounts(ctx context.Context, f models.Filter) (map[models.CellKey]int, error)
	InCellTx(ctx context.Context, fn func(tx models.CellTx) error) error
	DeleteAssignments(ctx context.Context, f models.Filter) (int64, error)
	RemoveVolunteer(ctx context.Context, tenantID, assignmentID, volunteerID uint) error
	Assignments(ctx context.Context, f models.Filter) ([]models.AssignmentView, error)
}

// Engine allocates volunteers to shifts and undoes allocations
type Engine struct {
	store         Store
	log           *zap.Logger
	now           func() time.Time
	horizonMonths int

	mu      sync.Mutex
	tenants map[uint]*sync.Mutex
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock replaces time.Now, used for the horizon check
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHorizon sets how many months past today a range may end
func WithHorizon(months int) Option {
	return func(e *Engine) {
		if months > 0 {
			e.horizonMonths = months
		}
	}
}

// NewEngine creates a new engine over the given store
func NewEngine(store Store, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:         store,
		log:           log,
		now:           time.Now,
		horizonMonths: DefaultHorizonMonths,
		tenants:       make(map[uint]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lockTenant serializes runs, resets and removals of one tenant within this process
func (e *Engine) lockTenant(tenantID uint) func() {
	e.mu.Lock()
	m, ok := e.tenants[tenantID]
	if !ok {
		m = &sync.Mutex{}
		e.tenants[tenantID] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (e *Engine) today() time.Time {
	n := e.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// FairnessScore returns a percentage (0-100) of how evenly assignments are
// spread across volunteers. 100 means every volunteer has the same count.
func FairnessScore(counts map[uint]int) float64 {
	if len(counts) == 0 {
		return 100.0
	}

	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	if sum == 0 {
		return 100.0
	}

	mean := sum / float64(len(counts))
	var varianceSum float64
	for _, c := range counts {
		diff := float64(c) - mean
		varianceSum += diff * diff
	}
	stdDev := math.Sqrt(varianceSum / float64(len(counts)))

	score := (1.0 - (stdDev / mean)) * 100.0
	if score < 0 {
		return 0.0
	}
	return score
}

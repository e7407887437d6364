package slots

import (
	"context"
	"errors"
	"sync"
	"time"

	"strikedesk/internal/metrics"
	"strikedesk/internal/models"

	"github.com/rs/zerolog"
)

// ErrSuperseded is returned to a caller whose fetch was overtaken by a newer Resolve.
var ErrSuperseded = errors.New("availability request superseded")

const statusAvailable = "available"

// Resolution is the availability of one center over the current grid.
type Resolution struct {
	CenterID   int                    `json:"centerId"`
	Grid       Grid                   `json:"grid"`
	Map        models.AvailabilityMap `json:"availability"`
	ResolvedAt time.Time              `json:"resolvedAt"`
	// FetchErr is set when the feed could not be read and Map fell back to all-available.
	FetchErr error `json:"-"`
}

// Degraded reports whether the map is the fail-open fallback.
func (r *Resolution) Degraded() bool {
	return r.FetchErr != nil
}

// Resolver turns a center's availability feed into an AvailabilityMap.
// Only the most recently issued Resolve may install its result.
type Resolver struct {
	feed   FeedSource
	clock  TimeProvider
	logger *zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	current *Resolution
}

func NewResolver(feed FeedSource, clock TimeProvider, logger *zerolog.Logger) *Resolver {
	if clock == nil {
		clock = RealTimeProvider{}
	}
	l := logger.With().Str("component", "availability").Logger()
	return &Resolver{feed: feed, clock: clock, logger: &l}
}

// Resolve fetches the feed for centerID and installs the resulting map.
// A feed failure never blocks: the map falls back to all-available and FetchErr is set.
// A superseded call returns ErrSuperseded and leaves the newer result untouched.
func (r *Resolver) Resolve(ctx context.Context, centerID int) (*Resolution, error) {
	r.mu.Lock()
	r.seq++
	token := r.seq
	if r.cancel != nil {
		r.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	grid := NewGrid(r.clock.Now())
	availability := grid.AllAvailable()
	feed, err := r.feed.GetSlots(fetchCtx, centerID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if token != r.seq {
		r.logger.Debug().Int("center_id", centerID).Msg("discarding stale availability response")
		return nil, ErrSuperseded
	}
	r.cancel = nil

	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res := &Resolution{CenterID: centerID, Grid: grid, ResolvedAt: r.clock.Now()}
	if err != nil {
		r.logger.Warn().Err(err).Int("center_id", centerID).Msg("availability feed unavailable, treating all slots as free")
		metrics.IncAvailabilityFallback()
		res.FetchErr = err
	} else {
		applyFeed(grid, availability, feed)
	}
	res.Map = availability
	r.current = res
	return res, nil
}

// Current returns the last installed resolution or nil.
func (r *Resolver) Current() *Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Clear drops the installed resolution and cancels any fetch in flight.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.current = nil
}

// applyFeed overrides grid cells listed in the feed. Unknown dates and labels are ignored.
func applyFeed(grid Grid, m models.AvailabilityMap, feed *models.SlotFeed) {
	if feed == nil {
		return
	}
	for date, entries := range feed.Availability {
		times, ok := m[date]
		if !ok {
			continue
		}
		for _, e := range entries {
			if _, ok := times[e.Slot]; !ok {
				continue
			}
			times[e.Slot] = e.Status == statusAvailable
		}
	}
}

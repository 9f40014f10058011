package forum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/query"
)

// ErrSequencerUnseeded is returned when an ID is requested before Seed has
// run. Constructing an entity without a seeded sequencer is a programming
// error, not a runtime condition to retry.
var ErrSequencerUnseeded = errors.New("sequencer not seeded")

// Sequencer issues strictly increasing int64 identifiers for one entity
// kind. The counter starts from the maximum primary key already in
// storage, so identifiers stay unique across process restarts.
type Sequencer struct {
	mu         sync.Mutex
	kind       string
	collection string
	db         interfaces.Database
	logger     *zap.SugaredLogger

	current int64
	seeded  bool
}

func NewSequencer(kind, collection string, database interfaces.Database, logger *zap.SugaredLogger) *Sequencer {
	return &Sequencer{
		kind:       kind,
		collection: collection,
		db:         database,
		logger:     logger,
	}
}

// Seed initializes the counter from the highest stored primary key.
// Idempotent: once seeded, repeat calls return immediately. A storage
// failure degrades to a millisecond-timestamp seed so the process can
// still start; IDs stay collision-free, just with a large gap.
func (s *Sequencer) Seed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return nil
	}

	docs, err := s.db.Collection(s.collection).Find(ctx, interfaces.Filter{}, &interfaces.FindOptions{
		Sort:  []interfaces.SortField{{Field: "_id", Desc: true}},
		Limit: 1,
	})
	if err != nil {
		s.current = time.Now().UnixMilli()
		s.seeded = true
		s.logger.Warnw("Sequencer seed degraded to timestamp fallback",
			"kind", s.kind, "seed", s.current, "error", err)
		return nil
	}

	if len(docs) > 0 {
		s.current = query.Int64(docs[0]["_id"])
		s.logger.Infow("Sequencer seeded from storage", "kind", s.kind, "seed", s.current)
	} else {
		s.current = 0
		s.logger.Infow("Sequencer seeded empty", "kind", s.kind)
	}
	s.seeded = true
	return nil
}

// Next returns the next identifier. It fails hard when called before Seed.
func (s *Sequencer) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		return 0, fmt.Errorf("%s sequencer: %w", s.kind, ErrSequencerUnseeded)
	}
	s.current++
	return s.current, nil
}

// AdvanceTo raises the counter to at least n. Hydration uses it to absorb
// identifiers assigned by earlier process lifetimes; it never regresses.
func (s *Sequencer) AdvanceTo(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.current {
		s.current = n
	}
}

// Current returns the last issued identifier (diagnostics only).
func (s *Sequencer) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Seeded reports whether the sequencer is ready to issue identifiers.
func (s *Sequencer) Seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded
}

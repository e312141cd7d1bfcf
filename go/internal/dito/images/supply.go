package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog/log"
)

// SupplyConfig controls how pairs are drawn for each room.
type SupplyConfig struct {
	// PerRoom is the number of pairs each room plays through.
	PerRoom int
	// Shuffle selects reservoir sampling over a full traversal instead of
	// handing out rows in source order.
	Shuffle bool
	// Seed makes shuffled draws reproducible when set.
	Seed *int64
}

// Supply hands out pairs to rooms. In sequential mode one cursor is kept
// across rooms so a large table is split between them, restarting from the top
// when the end is reached. In shuffle mode every room gets an independent
// uniform sample without replacement.
type Supply struct {
	src     Source
	perRoom int
	shuffle bool

	mu     sync.Mutex
	rng    *rand.Rand
	cursor Cursor
}

// NewSupply creates a supply over src.
func NewSupply(src Source, cfg SupplyConfig) *Supply {
	perRoom := cfg.PerRoom
	if perRoom < 1 {
		perRoom = 1
	}

	var rng *rand.Rand
	if cfg.Seed != nil {
		seed := uint64(*cfg.Seed)
		rng = rand.New(rand.NewPCG(seed, seed))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Supply{
		src:     src,
		perRoom: perRoom,
		shuffle: cfg.Shuffle,
		rng:     rng,
	}
}

// PerRoom returns how many pairs Assign returns.
func (s *Supply) PerRoom() int {
	return s.perRoom
}

// Validate opens one traversal and fails with ErrEmptySource if it holds no rows.
func (s *Supply) Validate(ctx context.Context) error {
	cur, err := s.src.Open(ctx)
	if err != nil {
		return err
	}
	defer cur.Close()

	if _, err := cur.Next(); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptySource
		}
		return err
	}
	return nil
}

// Assign returns PerRoom pairs for a new room.
func (s *Supply) Assign(ctx context.Context) ([]Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := make([]Pair, 0, s.perRoom)
	for len(sample) < s.perRoom {
		p, err := s.next(ctx)
		if err != nil {
			return nil, err
		}
		sample = append(sample, p)
	}

	if s.shuffle {
		if err := s.reservoir(sample); err != nil {
			return nil, err
		}
	}

	log.Debug().
		Int("pairs", len(sample)).
		Bool("shuffle", s.shuffle).
		Msg("assigned image pairs")

	return sample, nil
}

// next returns the row under the cursor, reopening the source at its end.
func (s *Supply) next(ctx context.Context) (Pair, error) {
	if s.cursor == nil {
		cur, err := s.src.Open(ctx)
		if err != nil {
			return Pair{}, fmt.Errorf("open pair source: %w", err)
		}
		s.cursor = cur
	}

	p, err := s.cursor.Next()
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, io.EOF) {
		s.resetCursor()
		return Pair{}, err
	}

	// end of the table, start again from the top
	s.resetCursor()
	cur, err := s.src.Open(ctx)
	if err != nil {
		return Pair{}, fmt.Errorf("reopen pair source: %w", err)
	}
	s.cursor = cur

	p, err = s.cursor.Next()
	if err != nil {
		s.resetCursor()
		if errors.Is(err, io.EOF) {
			return Pair{}, ErrEmptySource
		}
		return Pair{}, err
	}
	return p, nil
}

// reservoir replaces entries of sample with the remaining rows of the current
// traversal so that every row is kept with equal probability, then drops the
// traversal so the next room samples the whole table again.
func (s *Supply) reservoir(sample []Pair) error {
	defer s.resetCursor()

	n := len(sample)
	for line := n; ; line++ {
		p, err := s.cursor.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if j := s.rng.IntN(line + 1); j < n {
			sample[j] = p
		}
	}
}

func (s *Supply) resetCursor() {
	if s.cursor == nil {
		return
	}
	if err := s.cursor.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close pair cursor")
	}
	s.cursor = nil
}

// Close releases the open traversal, if any.
func (s *Supply) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCursor()
	return nil
}

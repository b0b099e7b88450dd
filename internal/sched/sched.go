// internal/sched/sched.go
package sched

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/softplc/vplc/internal/exchange"
	"github.com/softplc/vplc/internal/image"
	"github.com/softplc/vplc/internal/status"
)

// Program is the control logic invoked once per cycle. It reads the
// input snapshot and stages outputs through the accessor; staged
// outputs are committed after it returns.
type Program func(*image.Access)

// OverrunPolicy says what to do when a cycle takes longer than the
// configured period.
type OverrunPolicy int

const (
	// OverrunAbsorb records the overrun and carries on at the next tick.
	OverrunAbsorb OverrunPolicy = iota
	// OverrunFatal stops the loop after FatalAfter consecutive overruns.
	OverrunFatal
)

var ErrOverrun = errors.New("sched: consecutive cycle overruns exceeded limit")

type Config struct {
	Interval   time.Duration
	Policy     OverrunPolicy
	FatalAfter int
}

// Scheduler drives the cycle: exchange, program, commit, in that order,
// once per tick. No overlap between cycles.
type Scheduler struct {
	cfg     Config
	eng     *exchange.Engine
	img     *image.Image
	program Program

	overruns    atomic.Uint32
	lastOverrun atomic.Int64 // unix nanos, 0 = never
	consecOver  int
}

func New(cfg Config, eng *exchange.Engine, img *image.Image, program Program) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("sched: interval must be > 0")
	}
	if cfg.Policy == OverrunFatal && cfg.FatalAfter <= 0 {
		return nil, errors.New("sched: fatal policy requires fatal_after > 0")
	}
	if program == nil {
		return nil, errors.New("sched: program required")
	}
	return &Scheduler{cfg: cfg, eng: eng, img: img, program: program}, nil
}

// Run executes the cycle loop until ctx is cancelled or the overrun
// policy stops it. The engine is shut down before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.eng.Shutdown()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := s.cycle(now); err != nil {
				return err
			}
		}
	}
}

// cycle runs exactly one scan. The program always runs, even when the
// engine is faulted: its staged outputs simply never reach the wire
// while only safe frames are transmitted.
func (s *Scheduler) cycle(start time.Time) error {
	if err := s.eng.Exchange(start); err != nil &&
		!errors.Is(err, exchange.ErrExchangeFatal) {
		return fmt.Errorf("sched: exchange: %w", err)
	}

	s.program(s.img.Access())
	s.img.CommitOutputs()

	if elapsed := time.Since(start); elapsed > s.cfg.Interval {
		s.overruns.Add(1)
		s.lastOverrun.Store(start.UnixNano())
		s.consecOver++
		log.Printf("sched: cycle overrun: %v > %v", elapsed, s.cfg.Interval)

		if s.cfg.Policy == OverrunFatal && s.consecOver >= s.cfg.FatalAfter {
			return ErrOverrun
		}
	} else {
		s.consecOver = 0
	}

	return nil
}

// Status merges the engine snapshot with the scheduler's overrun
// counters.
func (s *Scheduler) Status() status.Snapshot {
	snap := s.eng.Status()
	snap.OverrunCount = s.overruns.Load()
	if ns := s.lastOverrun.Load(); ns != 0 {
		snap.LastOverrun = time.Unix(0, ns)
	}
	return snap
}

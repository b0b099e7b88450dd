// internal/sched/sched_test.go
package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/softplc/vplc/internal/bus/sim"
	"github.com/softplc/vplc/internal/config"
	"github.com/softplc/vplc/internal/exchange"
	"github.com/softplc/vplc/internal/image"
	"github.com/softplc/vplc/internal/status"
	"github.com/softplc/vplc/internal/topology"
)

func newEngine(t *testing.T, interval time.Duration) (*sim.Bus, *image.Image, *exchange.Engine) {
	t.Helper()

	c := &config.Config{PLC: config.PLCConfig{Devices: []config.DeviceConfig{
		{
			Name: "dio1", Position: 0,
			Entries: []config.EntryConfig{
				{Name: "out", Kind: config.KindBool, Region: config.RegionOutput},
				{Name: "word", Kind: config.KindUint, Bits: 16, Region: config.RegionInput},
			},
		},
	}}}
	config.Normalize(c)

	layout, err := topology.Build(c)
	if err != nil {
		t.Fatal(err)
	}
	b := sim.NewBus(sim.NewDevice("dio1", 2, 1))
	img := image.New(layout)

	eng, err := exchange.New(b, img, exchange.Config{
		CyclePeriod:       interval,
		UnresponsiveAfter: 3,
		FaultedFraction:   1.0,
		RecoveryInterval:  50,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return b, img, eng
}

func TestNewValidation(t *testing.T) {
	_, img, eng := newEngine(t, 5*time.Millisecond)
	prog := func(*image.Access) {}

	if _, err := New(Config{Interval: 0}, eng, img, prog); err == nil {
		t.Fatal("zero interval accepted")
	}
	if _, err := New(Config{Interval: time.Millisecond, Policy: OverrunFatal}, eng, img, prog); err == nil {
		t.Fatal("fatal policy without fatal_after accepted")
	}
	if _, err := New(Config{Interval: time.Millisecond}, eng, img, nil); err == nil {
		t.Fatal("nil program accepted")
	}
}

func TestRunDrivesCycles(t *testing.T) {
	interval := 2 * time.Millisecond
	b, img, eng := newEngine(t, interval)
	b.SetInputs(0, []byte{0x34, 0x12})

	cycles := 0
	var seen uint64
	s, err := New(Config{Interval: interval}, eng, img, func(acc *image.Access) {
		cycles++
		seen, _ = acc.Uint("dio1.word")
		if err := acc.SetBool("dio1.out", true); err != nil {
			t.Error(err)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() err=%v", err)
	}

	if cycles < 2 {
		t.Fatalf("cycles=%d", cycles)
	}
	// the program saw the exchanged inputs and its outputs reached the wire
	if seen != 0x1234 {
		t.Fatalf("program read word=%#x", seen)
	}

	snap := s.Status()
	if snap.CycleCount == 0 {
		t.Fatalf("snapshot cycles=%d", snap.CycleCount)
	}

	// Run shuts the engine down on exit
	if st := eng.State(); st != status.StateInit {
		t.Fatalf("state after Run=%v", st)
	}
	if al := b.Device(0).ALState(); al != 0x01 {
		t.Fatalf("device AL state=%#x, want Init", al)
	}
}

func TestOverrunAbsorb(t *testing.T) {
	interval := 10 * time.Millisecond
	sleep := 33 * time.Millisecond
	_, img, eng := newEngine(t, interval)

	var starts []time.Time
	s, err := New(Config{Interval: interval, Policy: OverrunAbsorb}, eng, img, func(*image.Access) {
		starts = append(starts, time.Now())
		if len(starts) == 2 {
			time.Sleep(sleep)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() err=%v", err)
	}

	snap := s.Status()
	if snap.OverrunCount == 0 {
		t.Fatal("overrun not recorded")
	}
	if snap.LastOverrun.IsZero() {
		t.Fatal("overrun time not recorded")
	}

	// the slow cycle swallowed several ticks; exactly one coalesced
	// cycle runs right after it ends, never zero and never a burst
	if len(starts) < 4 {
		t.Fatalf("only %d cycles ran", len(starts))
	}
	slowEnd := starts[1].Add(sleep)
	after := 0
	for _, ts := range starts[2:] {
		if !ts.Before(slowEnd) && ts.Before(slowEnd.Add(interval/4)) {
			after++
		}
	}
	if after != 1 {
		t.Fatalf("%d cycles ran in the period after the overrun, want exactly 1", after)
	}
}

func TestOverrunFatal(t *testing.T) {
	interval := 2 * time.Millisecond
	_, img, eng := newEngine(t, interval)

	s, err := New(Config{Interval: interval, Policy: OverrunFatal, FatalAfter: 2}, eng, img,
		func(*image.Access) { time.Sleep(3 * interval) })
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.Run(ctx); !errors.Is(err, ErrOverrun) {
		t.Fatalf("Run() err=%v, want ErrOverrun", err)
	}
}

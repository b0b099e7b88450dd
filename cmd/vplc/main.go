// cmd/vplc/main.go
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/softplc/vplc/internal/bus"
	"github.com/softplc/vplc/internal/bus/sim"
	"github.com/softplc/vplc/internal/config"
	"github.com/softplc/vplc/internal/exchange"
	"github.com/softplc/vplc/internal/exchange/modbusdev"
	"github.com/softplc/vplc/internal/image"
	"github.com/softplc/vplc/internal/sched"
	"github.com/softplc/vplc/internal/status"
	"github.com/softplc/vplc/internal/topology"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: vplc <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	layout, err := topology.Build(cfg)
	if err != nil {
		log.Fatalf("topology build failed: %v", err)
	}
	log.Printf("process image: %d input bytes, %d output bytes, %d signals",
		layout.InputBytes, layout.OutputBytes, len(layout.Signals))

	// --------------------
	// Link + bridged devices
	// --------------------

	link, err := buildLink(cfg, layout)
	if err != nil {
		log.Fatalf("link setup failed: %v", err)
	}
	defer link.Close()

	bridges, err := buildBridges(cfg, layout)
	if err != nil {
		log.Fatalf("bridged device setup failed: %v", err)
	}

	// --------------------
	// Engine bring-up
	// --------------------

	img := image.New(layout)

	cycle := time.Duration(cfg.PLC.CycleMs) * time.Millisecond

	eng, err := exchange.New(link, img, exchange.Config{
		CyclePeriod:       cycle,
		UnresponsiveAfter: cfg.PLC.Failure.UnresponsiveAfter,
		FaultedFraction:   cfg.PLC.Failure.FaultedFraction,
		RecoveryInterval:  cfg.PLC.Failure.RecoveryInterval,
	}, bridges)
	if err != nil {
		log.Fatalf("engine setup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Init(ctx); err != nil {
		log.Fatalf("bus init failed: %v", err)
	}

	// --------------------
	// Scheduler + control program
	// --------------------

	policy := sched.OverrunAbsorb
	if cfg.PLC.Overrun.Policy == config.OverrunFatal {
		policy = sched.OverrunFatal
	}

	s, err := sched.New(sched.Config{
		Interval:   cycle,
		Policy:     policy,
		FatalAfter: cfg.PLC.Overrun.FatalAfter,
	}, eng, img, blinkProgram(layout))
	if err != nil {
		log.Fatalf("scheduler setup failed: %v", err)
	}

	// 1Hz status reporter; dumps the encoded block on state changes
	go func() {
		secTicker := time.NewTicker(time.Second)
		defer secTicker.Stop()
		last := status.MainState(0)
		for {
			select {
			case <-ctx.Done():
				return
			case <-secTicker.C:
				snap := s.Status()
				log.Printf("status: state=%s cycle=%d overruns=%d",
					snap.State, snap.CycleCount, snap.OverrunCount)
				if snap.State != last {
					last = snap.State
					log.Printf("status block: %v", status.Encode(snap))
				}
			}
		}
	}()

	err = s.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		log.Print("shutdown complete")
	case err != nil:
		log.Fatalf("cycle loop failed: %v", err)
	}
}

func buildLink(cfg *config.Config, layout *topology.Layout) (bus.Link, error) {
	if strings.HasPrefix(cfg.PLC.Interface, "sim") {
		var devs []*sim.Device
		for _, d := range layout.Devices {
			if d.Bridged {
				continue
			}
			devs = append(devs, sim.NewDevice(d.Name, d.Window.InLen, d.Window.OutLen))
		}
		log.Printf("using simulated segment with %d devices", len(devs))
		return sim.NewBus(devs...), nil
	}
	return bus.NewUDPLink(cfg.PLC.Interface, bus.DefaultGroup)
}

func buildBridges(cfg *config.Config, layout *topology.Layout) (map[string]exchange.Bridged, error) {
	bridges := make(map[string]exchange.Bridged)
	for _, d := range layout.Devices {
		if !d.Bridged {
			continue
		}
		coils, discretes := windowModes(layout, d.Name)
		dev, err := modbusdev.New(modbusdev.Config{
			Endpoint:       d.Endpoint,
			UnitID:         d.UnitID,
			Timeout:        d.Timeout,
			OutputCoils:    coils,
			InputDiscretes: discretes,
		})
		if err != nil {
			return nil, err
		}
		bridges[d.Name] = dev
		log.Printf("bridged device %s at %s", d.Name, d.Endpoint)
	}
	return bridges, nil
}

// windowModes picks the Modbus function codes per window: a window made
// entirely of bool signals moves as coils/discrete inputs, anything
// else as 16-bit registers.
func windowModes(layout *topology.Layout, device string) (coils, discretes bool) {
	coils, discretes = true, true
	for _, sig := range layout.Signals {
		if sig.Device != device || sig.Kind == topology.Bool {
			continue
		}
		if sig.Region == topology.Output {
			coils = false
		} else {
			discretes = false
		}
	}
	return coils, discretes
}

// blinkProgram is a placeholder control program: every half second of
// cycles it flips every boolean output, which exercises the full
// output path end to end.
func blinkProgram(layout *topology.Layout) sched.Program {
	var bools []string
	for name, sig := range layout.Signals {
		if sig.Kind == topology.Bool && sig.Region == topology.Output {
			bools = append(bools, name)
		}
	}
	sort.Strings(bools)

	var cycle uint64
	on := false
	return func(acc *image.Access) {
		cycle++
		if cycle%50 == 0 {
			on = !on
		}
		for _, name := range bools {
			if err := acc.SetBool(name, on); err != nil {
				log.Printf("program: %s: %v", name, err)
			}
		}
	}
}

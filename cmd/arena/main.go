package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/nsf/termbox-go"

	"raidlab/internal/combatlog"
	"raidlab/internal/config"
	"raidlab/internal/mechanics"
	"raidlab/internal/sim"
)

// Terminals report key presses but never releases, so a press counts as
// held for this long.
const keyHold = 200 * time.Millisecond

func main() {
	_ = godotenv.Load(".env")

	filePath := flag.String("file", "", "combat log to train against (default: built-in demo)")
	presetsPath := flag.String("presets", "configs/mechanics.yaml", "YAML mechanic presets")
	seed := flag.Int64("seed", 0, "random seed (0 picks one from the clock)")
	flag.Parse()

	summary, err := loadSummary(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load log: %v\n", err)
		os.Exit(1)
	}

	list, source := extract(summary, *presetsPath)
	fmt.Printf("🎮 %d mechanics from %s\n", len(list), source)

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	arena := config.ArenaFromEnv()
	engine := sim.NewEngine(arena.Engine(), list, *seed)

	if err := play(engine, summary.EncounterName, arena.FPS); err != nil {
		fmt.Fprintf(os.Stderr, "arena: %v\n", err)
		os.Exit(1)
	}
}

func loadSummary(path string) (*combatlog.LogSummary, error) {
	if path == "" {
		return combatlog.DemoSummary(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return combatlog.BuildFromReader(f)
}

func extract(summary *combatlog.LogSummary, presetsPath string) ([]mechanics.Mechanic, string) {
	var enrichers []mechanics.Enricher
	if presetsPath != "" {
		if presets, err := mechanics.LoadPresets(presetsPath); err == nil {
			enrichers = append(enrichers, presets)
		} else {
			log.Printf("⚠️ Mechanic presets disabled: %v", err)
		}
	}
	if cfg := config.EnrichmentFromEnv(); cfg.APIKey != "" {
		enrichers = append(enrichers, mechanics.NewOpenAIEnricher(mechanics.OpenAIConfig{
			APIKey:            cfg.APIKey,
			ResponsesURL:      cfg.ResponsesURL,
			Model:             cfg.Model,
			RequestsPerMinute: cfg.RequestsPerMinute,
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.EnrichmentFromEnv().Timeout)
	defer cancel()
	return mechanics.NewExtractor(enrichers...).ExtractWithSource(ctx, summary)
}

func play(engine *sim.Engine, encounter string, fps int) error {
	if err := termbox.Init(); err != nil {
		return err
	}
	defer termbox.Close()

	// Session logging would scribble over the screen.
	log.SetOutput(io.Discard)
	defer log.SetOutput(os.Stderr)

	frames := make(chan struct{}, 1)
	sess := sim.NewSession(engine, sim.SessionOptions{
		ID:        "local",
		Encounter: encounter,
		FPS:       fps,
		OnFrame: func(*sim.Snapshot, sim.StepResult, time.Duration) {
			select {
			case frames <- struct{}{}:
			default:
			}
		},
	})
	defer sess.Stop()

	events := make(chan termbox.Event)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	keys := newHeldKeys(keyHold)
	release := time.NewTicker(keyHold / 4)
	defer release.Stop()

	draw(sess.Snapshot())
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case termbox.EventError:
				return ev.Err
			case termbox.EventResize:
				draw(sess.Snapshot())
			case termbox.EventKey:
				if quitKey(ev) {
					return nil
				}
				if ev.Key == termbox.KeySpace || ev.Key == termbox.KeyEnter {
					if snap := sess.Snapshot(); snap.Phase == sim.PhaseIdle {
						sess.Start()
					} else {
						sess.Restart()
					}
					draw(sess.Snapshot())
					continue
				}
				if k, ok := directionKey(ev); ok {
					keys.press(k, time.Now())
					sess.SetKey(k, true)
				}
			}
		case now := <-release.C:
			for _, k := range keys.expire(now) {
				sess.SetKey(k, false)
			}
		case <-frames:
			draw(sess.Snapshot())
		}
	}
}

func quitKey(ev termbox.Event) bool {
	return ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC || ev.Ch == 'q'
}

func directionKey(ev termbox.Event) (sim.Key, bool) {
	switch ev.Key {
	case termbox.KeyArrowUp:
		return sim.KeyUp, true
	case termbox.KeyArrowDown:
		return sim.KeyDown, true
	case termbox.KeyArrowLeft:
		return sim.KeyLeft, true
	case termbox.KeyArrowRight:
		return sim.KeyRight, true
	}
	switch ev.Ch {
	case 'w', 'W':
		return sim.KeyUp, true
	case 's', 'S':
		return sim.KeyDown, true
	case 'a', 'A':
		return sim.KeyLeft, true
	case 'd', 'D':
		return sim.KeyRight, true
	}
	return 0, false
}

// heldKeys tracks when each pressed key should be released.
type heldKeys struct {
	hold  time.Duration
	until map[sim.Key]time.Time
}

func newHeldKeys(hold time.Duration) *heldKeys {
	return &heldKeys{hold: hold, until: make(map[sim.Key]time.Time)}
}

func (h *heldKeys) press(k sim.Key, now time.Time) {
	h.until[k] = now.Add(h.hold)
}

// expire returns the keys whose hold ran out and forgets them.
func (h *heldKeys) expire(now time.Time) []sim.Key {
	var out []sim.Key
	for k, t := range h.until {
		if !now.Before(t) {
			out = append(out, k)
			delete(h.until, k)
		}
	}
	return out
}

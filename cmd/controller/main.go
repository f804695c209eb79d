package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/config"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/experience"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/orchestrator"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/policy"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
)

// #region main
func main() {
	configPath := flag.String("config", envOr("POKEBOT_CONFIG", ""), "YAML config file (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	cfg.Service.DBPath = envOr("POKEBOT_DB", cfg.Service.DBPath)
	cfg.Service.PolicyAddr = envOr("POLICY_ADDR", cfg.Service.PolicyAddr)
	cfg.Service.TrainerAddr = envOr("TRAINER_ADDR", cfg.Service.TrainerAddr)
	cfg.Service.FramesDir = envOr("FRAMES_DIR", cfg.Service.FramesDir)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	if cfg.Service.FramesDir == "" {
		log.Fatalf("no frame source: set FRAMES_DIR or service.frames_dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("controller: %v", err)
	}
}

// #endregion main

// #region run
func run(ctx context.Context, cfg config.Config) error {
	st, err := store.NewStore(cfg.Service.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	local, err := policy.NewLocal(cfg.Policy, st)
	if err != nil {
		return err
	}
	var predictor policy.Predictor = local
	if cfg.Service.PolicyAddr != "" {
		remote, err := policy.NewClient(cfg.Service.PolicyAddr)
		if err != nil {
			return err
		}
		defer remote.Close()
		predictor = policy.Fallback{Primary: remote, Secondary: local}
	}
	var trainer *policy.Client
	if cfg.Service.TrainerAddr != "" {
		if trainer, err = policy.NewClient(cfg.Service.TrainerAddr); err != nil {
			return err
		}
		defer trainer.Close()
	}

	training := make(chan []experience.Experience, cfg.Service.TrainingBuffer)
	orch, err := orchestrator.New(cfg.Orchestrator, orchestrator.Deps{
		Predictor: predictor,
		Learner:   local,
		Journal:   st.DB(),
		Training:  training,
	})
	if err != nil {
		return err
	}

	log.Printf("[CTRL] ready: db=%s policy=%q trainer=%q frames=%s",
		cfg.Service.DBPath, cfg.Service.PolicyAddr, cfg.Service.TrainerAddr, cfg.Service.FramesDir)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	frames := make(chan *game.Frame, cfg.Service.FrameBuffer)

	g.Go(func() error {
		defer close(frames)
		return streamFrames(ctx, cfg.Service.FramesDir, cfg.Service.FrameInterval, frames)
	})
	g.Go(func() error {
		defer cancel()
		return orch.Run(ctx, frames)
	})
	g.Go(func() error { return drainActions(ctx, orch.Actions()) })
	g.Go(func() error { return drainTraining(ctx, trainer, training) })

	err = g.Wait()

	out, saveErr := local.Save()
	if saveErr != nil {
		log.Printf("[CTRL] final save: %v", saveErr)
	} else {
		log.Printf("[CTRL] final save: %s %s", out.Action, out.Reason)
	}
	perf := orch.Performance()
	log.Printf("[CTRL] frames=%d actions=%d avg=%.0fus fps=%.1f experiences=%d",
		perf.FramesProcessed, perf.ActionsSent, perf.AvgFrameMicros, perf.FramesPerSecond,
		orch.Experience().TotalExperiences)
	return err
}

// #endregion run

// #region sinks

// drainActions writes every action as a JSON line on stdout for the
// emulator bridge.
func drainActions(ctx context.Context, actions <-chan orchestrator.ActionCommand) error {
	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-actions:
			if err := enc.Encode(map[string]string{
				"client_id": cmd.ClientID,
				"action":    string(cmd.Action),
				"frame_id":  cmd.FrameID,
			}); err != nil {
				return fmt.Errorf("write action: %w", err)
			}
		}
	}
}

// drainTraining ships batches to the trainer. Without a trainer, or when
// a submit fails, the batch is discarded.
func drainTraining(ctx context.Context, trainer *policy.Client, batches <-chan []experience.Experience) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-batches:
			if trainer == nil {
				log.Printf("[CTRL] no trainer, discarded batch of %d", len(batch))
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			n, err := trainer.SubmitBatch(sctx, batch)
			cancel()
			if err != nil {
				log.Printf("[CTRL] submit batch: %v", err)
				continue
			}
			log.Printf("[CTRL] trainer accepted %d/%d", n, len(batch))
		}
	}
}

// #endregion sinks

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers

/*
scheduler.go - Optional automatic invoice generation

PURPOSE:
  Runs batch generation for the most recently completed month on a
  timer, for deployments without an external cron calling
  `salaryd generate`. Generation is idempotent: teachers already
  invoiced skip as "up to date", so repeated runs are cheap.

DESIGN:
  - Background goroutine with a configurable check interval
  - Each tick targets the previous calendar month (the closed one)
  - A missing exchange rate just postpones the run; the admin saves
    the rate and the next tick picks the month up
  - Disabled by default; the domain endpoints stay synchronous and
    the scheduler only calls the same Generator.Run they do

CONFIGURATION:
  - CheckInterval: how often to check (default: 1 hour)
  - Enabled: whether the scheduler runs (default: false; AUTO_GENERATE)

USAGE:
  scheduler := api.NewGenerationScheduler(generator)
  scheduler.Enabled = true
  scheduler.Start()
  // ... on shutdown
  scheduler.Stop()

SEE ALSO:
  - invoice/generate.go: the batch run this automates
  - cmd/serve.go: wiring and the AUTO_GENERATE switch
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/invoice"
	"github.com/meridian/salary-engine/logger"
)

// SchedulerActor marks history entries written by automatic runs.
const SchedulerActor = "scheduler"

// GenerationScheduler periodically generates invoices for the closed month.
type GenerationScheduler struct {
	Generator     *invoice.Generator
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewGenerationScheduler creates a scheduler in its disabled state.
func NewGenerationScheduler(gen *invoice.Generator) *GenerationScheduler {
	return &GenerationScheduler{
		Generator:     gen,
		CheckInterval: time.Hour,
		Enabled:       false,
		log:           logger.WithComponent("scheduler"),
		stop:          make(chan struct{}),
	}
}

// Start begins the background loop. A disabled scheduler stays idle.
func (gs *GenerationScheduler) Start() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if !gs.Enabled {
		gs.log.Info().Msg("automatic generation disabled")
		return
	}
	if gs.ticker != nil {
		return
	}

	gs.ticker = time.NewTicker(gs.CheckInterval)
	gs.wg.Add(1)
	go gs.run()

	gs.log.Info().Dur("interval", gs.CheckInterval).Msg("automatic generation started")
}

// Stop halts the loop and waits for an in-flight run to finish.
func (gs *GenerationScheduler) Stop() {
	gs.mu.Lock()
	if gs.ticker == nil {
		gs.mu.Unlock()
		return
	}
	gs.ticker.Stop()
	gs.mu.Unlock()

	close(gs.stop)
	gs.wg.Wait()
	gs.log.Info().Msg("automatic generation stopped")
}

func (gs *GenerationScheduler) run() {
	defer gs.wg.Done()

	for {
		select {
		case <-gs.ticker.C:
			gs.generateClosedMonth(context.Background())
		case <-gs.stop:
			return
		}
	}
}

// generateClosedMonth runs batch generation for the previous calendar
// month. Months with no exchange rate yet are left for a later tick.
func (gs *GenerationScheduler) generateClosedMonth(ctx context.Context) {
	target := previousPeriod(billing.PeriodOf(time.Now().UTC()))

	result, err := gs.Generator.Run(ctx, target, nil, SchedulerActor)
	if err != nil {
		if billing.IsNotFound(err) {
			gs.log.Debug().Str("period", target.String()).Msg("no exchange rate yet, postponing run")
			return
		}
		gs.log.Error().Err(err).Str("period", target.String()).Msg("automatic generation failed")
		return
	}

	if batchErr := result.Err(); batchErr != nil {
		gs.log.Warn().Err(batchErr).Str("period", target.String()).Msg("automatic run finished with failures")
	}
	if len(result.Created) > 0 || len(result.Adjusted) > 0 {
		gs.log.Info().
			Str("period", target.String()).
			Int("created", len(result.Created)).
			Int("adjusted", len(result.Adjusted)).
			Int("skipped", len(result.Skipped)).
			Int("failed", len(result.Failed)).
			Msg("automatic generation run")
	}
}

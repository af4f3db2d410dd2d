package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"patientmon/internal/logger"
	"patientmon/internal/metrics"
	"patientmon/internal/models"
)

// Checker evaluates a single reading
type Checker interface {
	Check(ctx context.Context, r *models.Reading) error
}

// Pool manages a pool of workers that consume readings and check them
type Pool struct {
	checker      Checker
	readingChan  chan *models.Reading
	workers      int
	checkTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Checker      Checker
	ReadingChan  chan *models.Reading
	Workers      int
	CheckTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		checker:      cfg.Checker,
		readingChan:  cfg.ReadingChan,
		workers:      cfg.Workers,
		checkTimeout: cfg.CheckTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing readings
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Dur("check_timeout", p.checkTimeout).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels the workers without draining the channel and waits for them
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

// Wait blocks until the workers exit after the reading channel is closed
func (p *Pool) Wait() {
	p.wg.Wait()
}

// worker processes readings from the channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()
	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	for {
		select {
		case <-p.ctx.Done():
			return

		case reading, ok := <-p.readingChan:
			if !ok {
				// Channel closed and drained
				return
			}
			p.process(id, reading)
		}
	}
}

// process runs one check; a panic fails the reading, not the worker
func (p *Pool) process(id int, reading *models.Reading) {
	log := logger.WithComponent("worker").With().
		Int("worker_id", id).
		Str("patient_id", reading.PatientID).
		Str("kind", string(reading.Kind)).
		Logger()

	ctx, cancel := context.WithTimeout(p.ctx, p.checkTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("worker panic recovered")
				metrics.PanicsRecovered.WithLabelValues("worker").Inc()
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return p.checker.Check(ctx, reading)
	}()

	if err != nil {
		log.Error().Err(err).Str("reading_id", reading.ID).Msg("reading check failed")
		p.failed.Add(1)
		metrics.WorkerFailedTotal.Inc()
		return
	}

	p.processed.Add(1)
	metrics.WorkerProcessedTotal.Inc()
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"patientmon/internal/alerts"
	"patientmon/internal/config"
	"patientmon/internal/handlers"
	"patientmon/internal/kafka"
	"patientmon/internal/logger"
	"patientmon/internal/medical"
	"patientmon/internal/metrics"
	"patientmon/internal/middleware"
	"patientmon/internal/models"
	"patientmon/internal/repository"
	"patientmon/internal/state"
	"patientmon/internal/worker"
)

// Monitor wires the patient store, alert sinks, reading pipeline and HTTP API.
type Monitor struct {
	cfg         *config.Config
	store       repository.Store
	producer    *kafka.Producer
	consumer    kafka.Consumer
	service     *medical.Service
	workerPool  *worker.Pool
	httpServer  *http.Server
	listener    net.Listener
	readingChan chan *models.Reading

	consumerCancel context.CancelFunc
	consumerDone   chan struct{}
	wg             sync.WaitGroup

	httpShutdownTimeout time.Duration
	drainTimeout        time.Duration
}

// New constructs a Monitor with given config.
func New(cfg *config.Config) *Monitor {
	return &Monitor{
		cfg:         cfg,
		readingChan: make(chan *models.Reading, cfg.QueueSize),

		httpShutdownTimeout: 10 * time.Second,
		drainTimeout:        15 * time.Second,
	}
}

// Run starts background goroutines and blocks until context cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	log := logger.WithComponent("monitor")
	log.Info().Msg("monitor starting")

	if err := m.init(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize monitor")
		m.closeResources()
		return err
	}

	m.workerPool.Start()

	if m.consumer != nil {
		consumerCtx, cancel := context.WithCancel(context.Background())
		m.consumerCancel = cancel
		m.consumerDone = make(chan struct{})
		go func() {
			defer close(m.consumerDone)
			if err := m.consumer.Start(consumerCtx); err != nil {
				log.Error().Err(err).Msg("reading consumer stopped with error")
			}
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		log.Info().Str("addr", m.listener.Addr().String()).Msg("starting HTTP server")
		if err := m.httpServer.Serve(m.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return m.shutdown()
}

// init builds every component; it starts nothing.
func (m *Monitor) init(ctx context.Context) error {
	if err := m.initRepository(ctx); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}

	sender, err := m.initSenders()
	if err != nil {
		return fmt.Errorf("failed to initialize alert senders: %w", err)
	}
	m.service = medical.NewService(m.store, sender)

	m.workerPool = worker.NewPool(worker.Config{
		Checker:     m.service,
		ReadingChan: m.readingChan,
		Workers:     m.cfg.Workers,
	})

	if m.cfg.ConsumeReadings() {
		consumer, err := kafka.NewReadingConsumer(
			m.cfg.Kafka.Brokers,
			m.cfg.Kafka.ReadingsTopic,
			m.cfg.Kafka.GroupID,
			m.readingChan,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize reading consumer: %w", err)
		}
		m.consumer = consumer
	}

	if err := m.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	return nil
}

// initRepository opens the configured backend and the optional redis cache
func (m *Monitor) initRepository(ctx context.Context) error {
	log := logger.WithComponent("monitor")

	store, err := repository.Open(ctx, m.cfg.Repository)
	if err != nil {
		return err
	}
	log.Info().Str("backend", m.cfg.Repository.Backend).Msg("patient repository initialized")

	if m.cfg.Redis.Addr != "" {
		cache := state.NewRedisStore(state.RedisOptions{
			Addr:     m.cfg.Redis.Addr,
			Password: m.cfg.Redis.Password,
			DB:       m.cfg.Redis.DB,
			Prefix:   "patientmon:",
			TTL:      m.cfg.Redis.TTL,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := cache.Ping(pingCtx)
		cancel()

		if err != nil {
			log.Warn().Err(err).Str("addr", m.cfg.Redis.Addr).Msg("redis unavailable, running without patient cache")
			cache.Close()
		} else {
			store = repository.NewCached(store, cache)
			log.Info().Str("addr", m.cfg.Redis.Addr).Dur("ttl", m.cfg.Redis.TTL).Msg("patient cache enabled")
		}
	}

	m.store = store
	return nil
}

// initSenders builds the alert sink fan-out
func (m *Monitor) initSenders() (alerts.Sender, error) {
	log := logger.WithComponent("monitor")

	var sinks alerts.MultiSender
	if m.cfg.HasSink(config.SinkLog) {
		sinks = append(sinks, alerts.NewLogSender(logger.WithComponent("alerts")))
	}

	if m.cfg.HasSink(config.SinkKafka) {
		producer, err := kafka.NewProducer(
			m.cfg.Kafka.Brokers,
			m.cfg.Kafka.AlertTopic,
			m.cfg.Kafka.Producer,
		)
		if err != nil {
			return nil, err
		}
		m.producer = producer
		sinks = append(sinks, producer)

		log.Info().
			Strs("brokers", m.cfg.Kafka.Brokers).
			Str("topic", m.cfg.Kafka.AlertTopic).
			Msg("kafka alert producer initialized")
	}

	switch len(sinks) {
	case 0:
		return nil, errors.New("no alert sinks configured")
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

// initHTTPServer initializes the HTTP server with handlers
func (m *Monitor) initHTTPServer() error {
	mux := http.NewServeMux()

	handlers.NewPatientHandler(m.store, m.service).Register(mux)
	mux.Handle("POST /readings", handlers.NewIngestHandler(handlers.IngestConfig{
		ReadingChan: m.readingChan,
	}))

	mux.HandleFunc("GET /health", m.healthHandler)
	mux.HandleFunc("GET /stats", m.statsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	metrics.WorkerQueueCapacity.Set(float64(cap(m.readingChan)))

	ln, err := net.Listen("tcp", m.cfg.HTTPAddr)
	if err != nil {
		return err
	}
	m.listener = ln

	m.httpServer = &http.Server{
		Handler:      middleware.Chain(mux, middleware.Recovery, middleware.Logging),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// shutdown performs graceful shutdown
func (m *Monitor) shutdown() error {
	log := logger.WithComponent("monitor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.httpShutdownTimeout)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	httpStopped := true
	if err := m.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		httpStopped = false
	}

	// 2. Stop the kafka consumer so nothing else writes to the channel
	if m.consumer != nil {
		log.Info().Msg("stopping reading consumer")
		m.consumerCancel()
		<-m.consumerDone
		if err := m.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("consumer close error")
		}
	}

	// 3. Close reading channel and let workers drain it (with timeout).
	// Ingest handlers still running may send on the channel, so it stays
	// open when the HTTP server did not stop cleanly.
	if httpStopped {
		log.Info().Msg("closing reading channel")
		close(m.readingChan)

		done := make(chan struct{})
		go func() {
			m.workerPool.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("workers drained gracefully")
		case <-time.After(m.drainTimeout):
			log.Warn().Msg("worker drain timeout - cancelling in-flight checks")
			m.workerPool.Stop()
		}
	} else {
		log.Warn().Int("buffered", len(m.readingChan)).Msg("requests still in flight - stopping workers without draining")
		m.workerPool.Stop()
	}

	// 4. Close alert producer and patient store
	m.closeResources()

	// 5. Wait for all goroutines
	m.wg.Wait()

	log.Info().Msg("monitor stopped gracefully")
	return nil
}

func (m *Monitor) closeResources() {
	log := logger.WithComponent("monitor")

	if m.producer != nil {
		log.Info().Msg("closing kafka producer")
		if err := m.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			log.Error().Err(err).Msg("repository close error")
		}
	}
}

// reportStats periodically logs statistics
func (m *Monitor) reportStats(ctx context.Context) {
	log := logger.WithComponent("monitor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.stats()
			metrics.WorkerQueueSize.Set(float64(stats.Queue.Buffered))

			event := log.Info().
				Uint64("worker_processed", stats.Worker.Processed).
				Uint64("worker_failed", stats.Worker.Failed).
				Int("queue_size", stats.Queue.Buffered)
			if stats.Producer != nil {
				event = event.
					Uint64("producer_sent", stats.Producer.MessagesSent).
					Uint64("producer_failed", stats.Producer.MessagesFailed)
			}
			event.Msg("stats")
		}
	}
}

// Stats is the payload of the /stats endpoint
type Stats struct {
	Worker   worker.Stats         `json:"worker"`
	Producer *kafka.ProducerStats `json:"producer,omitempty"`
	Queue    QueueStats           `json:"queue"`
}

// QueueStats describes the reading channel
type QueueStats struct {
	Buffered int `json:"buffered"`
	Capacity int `json:"capacity"`
}

func (m *Monitor) stats() Stats {
	s := Stats{
		Worker: m.workerPool.Stats(),
		Queue: QueueStats{
			Buffered: len(m.readingChan),
			Capacity: cap(m.readingChan),
		},
	}
	if m.producer != nil {
		ps := m.producer.Stats()
		s.Producer = &ps
	}
	return s
}

// healthHandler handles health check requests
func (m *Monitor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if m.producer != nil {
		if err := m.producer.HealthCheck(ctx); err != nil {
			http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (m *Monitor) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.stats())
}

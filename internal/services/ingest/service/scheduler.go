// Package service provides the ingestion scheduler: per-source polling loops
// with retry, circuit breaking and adaptive intervals
package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pulsemap/internal/platform/config"
	perr "pulsemap/internal/platform/errors"
	"pulsemap/internal/platform/logger"
	"pulsemap/internal/platform/metrics"
	dom "pulsemap/internal/services/ingest/domain"
	incdom "pulsemap/internal/services/incidents/domain"
)

// Config tunes the scheduler
type Config struct {
	// BaseInterval is the default polling cadence per source
	BaseInterval time.Duration

	// FastInterval is the floor the cadence accelerates to under activity
	FastInterval time.Duration

	// SlowInterval is the cadence for idle sources
	SlowInterval time.Duration

	// FastThreshold is the processed-record count that triggers FastInterval
	FastThreshold int

	// RetryMaxAttempts bounds fetch retries inside one cycle
	RetryMaxAttempts uint64

	// RetryBaseDelay seeds the capped exponential retry backoff
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps a single retry wait
	RetryMaxDelay time.Duration

	// ErrorThreshold is the consecutive-failure count that opens the circuit
	ErrorThreshold int

	// CircuitCooldown is how long an open circuit skips cycles, and also the
	// reschedule cap while failing
	CircuitCooldown time.Duration

	// UpsertWorkers bounds concurrent storage writes per cycle
	UpsertWorkers int
}

// ConfigFromEnv reads INGEST_* settings with workable defaults
func ConfigFromEnv(cfg config.Conf) Config {
	v := cfg.Prefix("INGEST_")
	return Config{
		BaseInterval:     v.MayDuration("INTERVAL", 2*time.Minute),
		FastInterval:     v.MayDuration("INTERVAL_FAST", 30*time.Second),
		SlowInterval:     v.MayDuration("INTERVAL_SLOW", 5*time.Minute),
		FastThreshold:    v.MayInt("FAST_THRESHOLD", 25),
		RetryMaxAttempts: uint64(v.MayInt("RETRY_ATTEMPTS", 3)),
		RetryBaseDelay:   v.MayDuration("RETRY_BASE", 500*time.Millisecond),
		RetryMaxDelay:    v.MayDuration("RETRY_MAX", 5*time.Second),
		ErrorThreshold:   v.MayInt("ERROR_THRESHOLD", 5),
		CircuitCooldown:  v.MayDuration("CIRCUIT_COOLDOWN", 10*time.Minute),
		UpsertWorkers:    v.MayInt("UPSERT_WORKERS", 4),
	}
}

func (c *Config) normalize() {
	if c.BaseInterval <= 0 {
		c.BaseInterval = 2 * time.Minute
	}
	if c.FastInterval <= 0 {
		c.FastInterval = 30 * time.Second
	}
	if c.SlowInterval <= 0 {
		c.SlowInterval = 5 * time.Minute
	}
	if c.FastThreshold <= 0 {
		c.FastThreshold = 25
	}
	if c.RetryMaxAttempts == 0 {
		c.RetryMaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 5 * time.Second
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = 5
	}
	if c.CircuitCooldown <= 0 {
		c.CircuitCooldown = 10 * time.Minute
	}
	if c.UpsertWorkers <= 0 {
		c.UpsertWorkers = 4
	}
}

// Upserter is the storage surface one cycle writes through
type Upserter interface {
	Upsert(ctx context.Context, inc incdom.Incident) (incdom.WriteResult, error)
}

// Rebuilder triggers a spatial index rebuild; implementations guard against
// concurrent rebuilds themselves
type Rebuilder interface {
	Rebuild(ctx context.Context)
}

// sourceState tracks one registered source's breaker and schedule
type sourceState struct {
	spec dom.SourceSpec

	mu        sync.Mutex
	errors    int
	circuit   dom.CircuitState
	openUntil time.Time
	lastErr   string
	lastTry   time.Time
	lastOK    time.Time
	nextRun   time.Time
	interval  time.Duration
	cycles    int64
	processed int64
}

// Scheduler polls registered sources on independent self-rescheduling loops
type Scheduler struct {
	cfg       Config
	upserter  Upserter
	rebuilder Rebuilder
	log       *logger.Logger

	mu      sync.Mutex
	sources map[incdom.Source]*sourceState
	order   []incdom.Source
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler
func New(cfg Config, up Upserter, rb Rebuilder) *Scheduler {
	cfg.normalize()
	return &Scheduler{
		cfg:       cfg,
		upserter:  up,
		rebuilder: rb,
		log:       logger.Named("ingest"),
		sources:   make(map[incdom.Source]*sourceState),
	}
}

// Register adds a source before Start. Misconfigured sources are the only
// fatal errors the scheduler knows
func (s *Scheduler) Register(spec dom.SourceSpec) error {
	if !spec.Name.Valid() {
		return perr.InvalidArgf("ingest: unknown source %q", spec.Name)
	}
	if spec.Fetch == nil || spec.Normalize == nil {
		return perr.InvalidArgf("ingest: source %q needs fetch and normalize", spec.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return perr.Conflictf("ingest: cannot register %q after start", spec.Name)
	}
	if _, dup := s.sources[spec.Name]; dup {
		return perr.Conflictf("ingest: source %q already registered", spec.Name)
	}

	interval := spec.Interval
	if interval <= 0 {
		interval = s.cfg.BaseInterval
	}
	s.sources[spec.Name] = &sourceState{
		spec:     spec,
		circuit:  dom.CircuitClosed,
		interval: interval,
	}
	s.order = append(s.order, spec.Name)
	return nil
}

// Start launches one polling loop per registered source
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	states := make([]*sourceState, 0, len(s.order))
	for _, name := range s.order {
		states = append(states, s.sources[name])
	}
	s.mu.Unlock()

	for _, st := range states {
		s.wg.Add(1)
		go s.loop(ctx, st)
	}
	s.log.Info().Int("sources", len(states)).Msg("ingest scheduler started")
}

// Stop cancels the loops and waits for in-flight cycles to settle
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
		s.log.Info().Msg("ingest scheduler stopped")
	case <-ctx.Done():
		s.log.Warn().Msg("ingest scheduler stop timed out")
	}
}

// loop runs one source's self-rescheduling cycle timer
func (s *Scheduler) loop(ctx context.Context, st *sourceState) {
	defer s.wg.Done()

	// first poll happens promptly rather than after a full interval
	timer := time.NewTimer(jitterDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		res := s.runCycle(ctx, st, false)
		next := s.nextInterval(st, res)

		st.mu.Lock()
		st.interval = next
		st.nextRun = time.Now().Add(next)
		st.mu.Unlock()

		timer.Reset(next)
	}
}

// jitterDelay staggers startup so sources do not all fire at once
func jitterDelay() time.Duration {
	return time.Duration(time.Now().UnixNano()%1500) * time.Millisecond
}

// RunAll forces one cycle for every source, in registration order
func (s *Scheduler) RunAll(ctx context.Context) []dom.CycleResult {
	s.mu.Lock()
	states := make([]*sourceState, 0, len(s.order))
	for _, name := range s.order {
		states = append(states, s.sources[name])
	}
	s.mu.Unlock()

	out := make([]dom.CycleResult, 0, len(states))
	for _, st := range states {
		res := s.runCycle(ctx, st, true)
		res.Triggered = true
		out = append(out, res)
	}
	return out
}

// RunOne forces one cycle for a single source
func (s *Scheduler) RunOne(ctx context.Context, source incdom.Source) (dom.CycleResult, error) {
	s.mu.Lock()
	st, ok := s.sources[source]
	s.mu.Unlock()
	if !ok {
		return dom.CycleResult{}, perr.NotFoundf("ingest: source %q not registered", source)
	}
	res := s.runCycle(ctx, st, true)
	res.Triggered = true
	return res, nil
}

// Health returns a read-only snapshot for every source
func (s *Scheduler) Health() []dom.SourceHealth {
	s.mu.Lock()
	states := make([]*sourceState, 0, len(s.order))
	for _, name := range s.order {
		states = append(states, s.sources[name])
	}
	s.mu.Unlock()

	out := make([]dom.SourceHealth, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, dom.SourceHealth{
			Source:            string(st.spec.Name),
			Circuit:           st.circuit,
			ConsecutiveErrors: st.errors,
			LastError:         st.lastErr,
			LastAttempt:       st.lastTry,
			LastSuccess:       st.lastOK,
			NextRun:           st.nextRun,
			Interval:          st.interval,
			CyclesRun:         st.cycles,
			RecordsProcessed:  st.processed,
		})
		st.mu.Unlock()
	}
	return out
}

// runCycle executes one full fetch/normalize/upsert pass. forced bypasses an
// open circuit for operational recovery
func (s *Scheduler) runCycle(ctx context.Context, st *sourceState, forced bool) dom.CycleResult {
	name := string(st.spec.Name)
	ctx = logger.WithSource(ctx, name)
	started := time.Now()
	res := dom.CycleResult{Source: name}

	st.mu.Lock()
	st.cycles++
	st.lastTry = started
	skip := st.circuit == dom.CircuitOpen && started.Before(st.openUntil) && !forced
	st.mu.Unlock()

	if skip {
		logger.C(ctx).Debug().Msg("circuit open, cycle skipped")
		metrics.IngestCyclesTotal.WithLabelValues(name, "skipped").Inc()
		return res
	}

	raw, err := s.fetchWithRetry(ctx, st.spec.Fetch)
	if err != nil {
		s.recordFailure(ctx, st, err)
		res.Elapsed = time.Since(started)
		metrics.IngestCyclesTotal.WithLabelValues(name, "error").Inc()
		return res
	}

	incidents, dropped, nerr := st.spec.Normalize(raw, time.Now().UTC())
	if nerr != nil {
		logger.C(ctx).Warn().Err(nerr).Msg("payload failed to normalize, treating as empty")
		incidents = nil
	}
	res.Fetched = len(incidents)
	res.Dropped = dropped

	s.upsertBatch(ctx, incidents, &res)

	st.mu.Lock()
	st.errors = 0
	st.circuit = dom.CircuitClosed
	st.openUntil = time.Time{}
	st.lastErr = ""
	st.lastOK = time.Now()
	st.processed += int64(res.Processed())
	st.mu.Unlock()

	if s.rebuilder != nil {
		s.rebuilder.Rebuild(ctx)
	}

	res.Elapsed = time.Since(started)
	metrics.IngestCyclesTotal.WithLabelValues(name, "ok").Inc()
	logger.C(ctx).Info().
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("dropped", res.Dropped).
		Int("failed", res.Failed).
		Dur("elapsed", res.Elapsed).
		Msg("ingest cycle complete")
	return res
}

// fetchWithRetry wraps the source fetch in a capped exponential backoff
func (s *Scheduler) fetchWithRetry(ctx context.Context, fetch dom.FetchFunc) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryBaseDelay
	bo.MaxInterval = s.cfg.RetryMaxDelay
	bo.MaxElapsedTime = 0

	return backoff.RetryWithData(func() ([]byte, error) {
		raw, err := fetch(ctx)
		if err != nil && !perr.IsRetryable(err) && perr.CodeOf(err) != perr.ErrorCodeUnavailable {
			return nil, backoff.Permanent(err)
		}
		return raw, err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.cfg.RetryMaxAttempts), ctx))
}

// upsertBatch writes incidents through a bounded worker pool. Each record
// succeeds or fails on its own
func (s *Scheduler) upsertBatch(ctx context.Context, incidents []incdom.Incident, res *dom.CycleResult) {
	if len(incidents) == 0 {
		return
	}
	name := res.Source

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		work = make(chan incdom.Incident)
	)

	workers := s.cfg.UpsertWorkers
	if workers > len(incidents) {
		workers = len(incidents)
	}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inc := range work {
				wr, err := s.upserter.Upsert(ctx, inc)
				mu.Lock()
				switch {
				case err != nil:
					res.Failed++
					metrics.IngestUpsertsTotal.WithLabelValues(name, "error").Inc()
					logger.C(ctx).Warn().Err(err).Str("id", inc.ID).Msg("upsert failed")
				case wr.Outcome == incdom.OutcomeInserted:
					res.Inserted++
					metrics.IngestUpsertsTotal.WithLabelValues(name, "inserted").Inc()
				case wr.Outcome == incdom.OutcomeUpdated:
					res.Updated++
					metrics.IngestUpsertsTotal.WithLabelValues(name, "updated").Inc()
				default:
					res.Skipped++
					metrics.IngestUpsertsTotal.WithLabelValues(name, "skipped").Inc()
				}
				mu.Unlock()
			}
		}()
	}

	for _, inc := range incidents {
		work <- inc
	}
	close(work)
	wg.Wait()
}

// recordFailure bumps the breaker and opens it at the threshold
func (s *Scheduler) recordFailure(ctx context.Context, st *sourceState, err error) {
	st.mu.Lock()
	st.errors++
	st.lastErr = err.Error()
	opened := false
	if st.errors >= s.cfg.ErrorThreshold && st.circuit != dom.CircuitOpen {
		st.circuit = dom.CircuitOpen
		opened = true
	}
	if st.circuit == dom.CircuitOpen {
		st.openUntil = time.Now().Add(s.cfg.CircuitCooldown)
	}
	errors := st.errors
	st.mu.Unlock()

	if opened {
		metrics.IngestCircuitOpens.WithLabelValues(string(st.spec.Name)).Inc()
		logger.C(ctx).Error().Err(err).Int("errors", errors).Msg("circuit opened")
		return
	}
	logger.C(ctx).Warn().Err(err).Int("errors", errors).Msg("ingest cycle failed")
}

// nextInterval picks the next delay: failing sources back off exponentially in
// the error count, busy sources accelerate to the floor, idle sources slow down
func (s *Scheduler) nextInterval(st *sourceState, res dom.CycleResult) time.Duration {
	st.mu.Lock()
	errors := st.errors
	circuitOpen := st.circuit == dom.CircuitOpen
	base := st.spec.Interval
	st.mu.Unlock()
	if base <= 0 {
		base = s.cfg.BaseInterval
	}

	if errors > 0 || circuitOpen {
		d := s.cfg.RetryBaseDelay << uint(min(errors, 10))
		if d > s.cfg.CircuitCooldown || d <= 0 {
			d = s.cfg.CircuitCooldown
		}
		if d < base {
			return base
		}
		return d
	}

	switch {
	case res.Processed() >= s.cfg.FastThreshold:
		return s.cfg.FastInterval
	case res.Processed() > 0:
		return base
	default:
		return s.cfg.SlowInterval
	}
}

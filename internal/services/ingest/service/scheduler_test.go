package service

import (
	"context"
	"sync"
	"testing"
	"time"

	perr "pulsemap/internal/platform/errors"
	dom "pulsemap/internal/services/ingest/domain"
	incdom "pulsemap/internal/services/incidents/domain"
)

type fakeUpserter struct {
	mu   sync.Mutex
	seen map[string]bool
	fail map[string]bool
}

func newFakeUpserter() *fakeUpserter {
	return &fakeUpserter{seen: map[string]bool{}, fail: map[string]bool{}}
}

func (f *fakeUpserter) Upsert(_ context.Context, inc incdom.Incident) (incdom.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[inc.ID] {
		return incdom.WriteResult{}, perr.DBf("boom")
	}
	outcome := incdom.OutcomeInserted
	if f.seen[inc.ID] {
		outcome = incdom.OutcomeUpdated
	}
	f.seen[inc.ID] = true
	return incdom.WriteResult{Incident: inc, Outcome: outcome}, nil
}

type fakeRebuilder struct {
	mu    sync.Mutex
	count int
}

func (f *fakeRebuilder) Rebuild(context.Context) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
}

func (f *fakeRebuilder) rebuilds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func testConfig() Config {
	return Config{
		BaseInterval:     time.Minute,
		FastInterval:     time.Second,
		SlowInterval:     5 * time.Minute,
		FastThreshold:    3,
		RetryMaxAttempts: 1,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    time.Millisecond,
		ErrorThreshold:   2,
		CircuitCooldown:  time.Hour,
		UpsertWorkers:    2,
	}
}

func staticNormalize(ids ...string) dom.NormalizeFunc {
	return func([]byte, time.Time) ([]incdom.Incident, int, error) {
		out := make([]incdom.Incident, 0, len(ids))
		for _, id := range ids {
			out = append(out, incdom.Incident{
				ID:       "road-traffic:" + id,
				Source:   incdom.SourceRoadTraffic,
				SourceID: id,
			})
		}
		return out, 0, nil
	}
}

func TestRegister_Validation(t *testing.T) {
	s := New(testConfig(), newFakeUpserter(), nil)

	err := s.Register(dom.SourceSpec{Name: "bogus"})
	if err == nil {
		t.Fatalf("unknown source should fail registration")
	}

	err = s.Register(dom.SourceSpec{Name: incdom.SourceRoadTraffic})
	if err == nil {
		t.Fatalf("missing fetch/normalize should fail registration")
	}

	spec := dom.SourceSpec{
		Name:      incdom.SourceRoadTraffic,
		Fetch:     func(context.Context) ([]byte, error) { return nil, nil },
		Normalize: staticNormalize(),
	}
	if err := s.Register(spec); err != nil {
		t.Fatalf("valid registration failed: %v", err)
	}
	if err := s.Register(spec); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func TestRunOne_TalliesOutcomes(t *testing.T) {
	up := newFakeUpserter()
	up.fail["road-traffic:bad"] = true
	rb := &fakeRebuilder{}
	s := New(testConfig(), up, rb)

	err := s.Register(dom.SourceSpec{
		Name:      incdom.SourceRoadTraffic,
		Fetch:     func(context.Context) ([]byte, error) { return []byte(`{}`), nil },
		Normalize: staticNormalize("a", "b", "bad"),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := s.RunOne(context.Background(), incdom.SourceRoadTraffic)
	if err != nil {
		t.Fatalf("run one: %v", err)
	}
	if res.Fetched != 3 || res.Inserted != 2 || res.Failed != 1 {
		t.Fatalf("tally mismatch: %+v", res)
	}

	// same batch again: the two good records update, the bad one still fails
	res, err = s.RunOne(context.Background(), incdom.SourceRoadTraffic)
	if err != nil {
		t.Fatalf("run one: %v", err)
	}
	if res.Updated != 2 || res.Inserted != 0 || res.Failed != 1 {
		t.Fatalf("second tally mismatch: %+v", res)
	}
	if rb.rebuilds() != 2 {
		t.Fatalf("every successful cycle triggers a rebuild, got %d", rb.rebuilds())
	}
}

func TestRunOne_SurfacesDroppedRecords(t *testing.T) {
	s := New(testConfig(), newFakeUpserter(), nil)
	err := s.Register(dom.SourceSpec{
		Name:  incdom.SourceDispatch,
		Fetch: func(context.Context) ([]byte, error) { return []byte(`{}`), nil },
		Normalize: func([]byte, time.Time) ([]incdom.Incident, int, error) {
			out := []incdom.Incident{{
				ID:       "emergency-dispatch:ok",
				Source:   incdom.SourceDispatch,
				SourceID: "ok",
			}}
			return out, 2, nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := s.RunOne(context.Background(), incdom.SourceDispatch)
	if err != nil {
		t.Fatalf("run one: %v", err)
	}
	if res.Fetched != 1 || res.Inserted != 1 {
		t.Fatalf("tally mismatch: %+v", res)
	}
	if res.Dropped != 2 {
		t.Fatalf("dropped = %d, want 2", res.Dropped)
	}
}

func TestRunOne_UnknownSource(t *testing.T) {
	s := New(testConfig(), newFakeUpserter(), nil)
	if _, err := s.RunOne(context.Background(), incdom.SourceDispatch); err == nil {
		t.Fatalf("unregistered source should error")
	}
}

func TestCircuit_OpensAtThresholdAndResets(t *testing.T) {
	var (
		mu      sync.Mutex
		failing = true
		fetches int
	)
	fetch := func(context.Context) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		fetches++
		if failing {
			return nil, perr.Unavailablef("feed down")
		}
		return []byte(`{}`), nil
	}

	s := New(testConfig(), newFakeUpserter(), nil)
	err := s.Register(dom.SourceSpec{
		Name:      incdom.SourceDispatch,
		Fetch:     fetch,
		Normalize: staticNormalize("x"),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// threshold is 2: two failed cycles open the circuit
	for range 2 {
		if _, err := s.RunOne(context.Background(), incdom.SourceDispatch); err != nil {
			t.Fatalf("run one: %v", err)
		}
	}
	h := s.Health()
	if len(h) != 1 || h[0].Circuit != dom.CircuitOpen {
		t.Fatalf("circuit should be open: %+v", h)
	}
	if h[0].ConsecutiveErrors != 2 {
		t.Fatalf("errors = %d, want 2", h[0].ConsecutiveErrors)
	}

	// an unforced cycle while open must skip without fetching
	st := s.sources[incdom.SourceDispatch]
	before := fetches
	s.runCycle(context.Background(), st, false)
	mu.Lock()
	after := fetches
	mu.Unlock()
	if after != before {
		t.Fatalf("open circuit should skip the fetch")
	}

	// recovery: a forced cycle that succeeds closes the circuit
	mu.Lock()
	failing = false
	mu.Unlock()
	if _, err := s.RunOne(context.Background(), incdom.SourceDispatch); err != nil {
		t.Fatalf("run one: %v", err)
	}
	h = s.Health()
	if h[0].Circuit != dom.CircuitClosed || h[0].ConsecutiveErrors != 0 {
		t.Fatalf("circuit should reset on success: %+v", h[0])
	}
}

func TestRunCycle_MalformedPayloadIsNotAFailure(t *testing.T) {
	s := New(testConfig(), newFakeUpserter(), nil)
	err := s.Register(dom.SourceSpec{
		Name:  incdom.SourceUserReport,
		Fetch: func(context.Context) ([]byte, error) { return []byte(`{broken`), nil },
		Normalize: func([]byte, time.Time) ([]incdom.Incident, int, error) {
			return nil, 0, perr.JSONErrf("bad payload")
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := s.RunOne(context.Background(), incdom.SourceUserReport)
	if err != nil {
		t.Fatalf("run one: %v", err)
	}
	if res.Fetched != 0 {
		t.Fatalf("malformed payload yields an empty batch, got %+v", res)
	}
	if h := s.Health(); h[0].ConsecutiveErrors != 0 {
		t.Fatalf("malformed payload must not trip the breaker: %+v", h[0])
	}
}

func TestNextInterval_Adaptive(t *testing.T) {
	cfg := testConfig()
	s := New(cfg, newFakeUpserter(), nil)
	err := s.Register(dom.SourceSpec{
		Name:      incdom.SourceRoadTraffic,
		Fetch:     func(context.Context) ([]byte, error) { return nil, nil },
		Normalize: staticNormalize(),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	st := s.sources[incdom.SourceRoadTraffic]

	busy := dom.CycleResult{Inserted: cfg.FastThreshold}
	if got := s.nextInterval(st, busy); got != cfg.FastInterval {
		t.Fatalf("busy interval = %v, want the fast floor", got)
	}

	some := dom.CycleResult{Inserted: 1}
	if got := s.nextInterval(st, some); got != cfg.BaseInterval {
		t.Fatalf("active interval = %v, want base", got)
	}

	idle := dom.CycleResult{}
	if got := s.nextInterval(st, idle); got != cfg.SlowInterval {
		t.Fatalf("idle interval = %v, want slow", got)
	}

	st.mu.Lock()
	st.errors = 3
	st.mu.Unlock()
	if got := s.nextInterval(st, idle); got < cfg.BaseInterval || got > cfg.CircuitCooldown {
		t.Fatalf("failing interval = %v, want backoff within [base, cooldown]", got)
	}
}

func TestStartStop(t *testing.T) {
	s := New(testConfig(), newFakeUpserter(), nil)
	err := s.Register(dom.SourceSpec{
		Name:      incdom.SourceRoadTraffic,
		Fetch:     func(context.Context) ([]byte, error) { return []byte(`{}`), nil },
		Normalize: staticNormalize(),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
}

package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"

	"pulsemap/internal/platform/config"
	"pulsemap/internal/platform/logger"
	"pulsemap/internal/platform/store"

	"pulsemap/internal/adapters/feeds/dispatch"
	"pulsemap/internal/adapters/feeds/roadtraffic"
	"pulsemap/internal/adapters/feeds/userreports"

	incdom "pulsemap/internal/services/incidents/domain"
	increpo "pulsemap/internal/services/incidents/repo"
	incsvc "pulsemap/internal/services/incidents/service"
	ingdom "pulsemap/internal/services/ingest/domain"
	"pulsemap/internal/services/ingest/normalize"
	ingsvc "pulsemap/internal/services/ingest/service"
	spsvc "pulsemap/internal/services/spatial/service"
)

func main() {
	_ = godotenv.Load(".env")

	var (
		source = flag.String("source", "", "run a single source (road-traffic, emergency-dispatch, user-submitted); empty runs all")
		prune  = flag.Duration("prune", 0, "also prune resolved incidents older than this (0 disables)")
	)
	flag.Parse()

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		AppName: "pulsemap-ingest",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	incidents := incsvc.New(st.PG, increpo.NewPG())
	engine := spsvc.NewEngine(spsvc.ConfigFromEnv(root))
	rebuilder := spsvc.NewRebuilder(incidents, engine)
	sched := ingsvc.New(ingsvc.ConfigFromEnv(root), incidents, rebuilder)

	registerSources(root, sched, l)

	ctx := context.Background()

	var results []ingdom.CycleResult
	if *source != "" {
		res, err := sched.RunOne(ctx, incdom.Source(*source))
		if err != nil {
			l.Fatal().Err(err).Str("source", *source).Msg("forced cycle failed")
		}
		results = append(results, res)
	} else {
		results = sched.RunAll(ctx)
	}

	for _, res := range results {
		l.Info().
			Str("source", res.Source).
			Int("fetched", res.Fetched).
			Int("inserted", res.Inserted).
			Int("updated", res.Updated).
			Int("skipped", res.Skipped).
			Int("dropped", res.Dropped).
			Int("failed", res.Failed).
			Dur("elapsed", res.Elapsed).
			Msg("cycle complete")
	}

	if *prune > 0 {
		cutoff := time.Now().UTC().Add(-*prune)
		n, err := incidents.PruneBefore(ctx, cutoff)
		if err != nil {
			l.Error().Err(err).Msg("prune failed")
		} else {
			l.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("pruned resolved incidents")
		}
	}
}

// registerSources wires the configured upstream feeds into the scheduler.
// The two official feeds are mandatory, the community intake is optional
func registerSources(root config.Conf, sched *ingsvc.Scheduler, l *logger.Logger) {
	rtCfg := root.Prefix("FEED_ROADTRAFFIC_")
	rt := roadtraffic.NewClient(roadtraffic.Options{
		URL:     rtCfg.MustString("URL"),
		Timeout: rtCfg.MayDuration("TIMEOUT", 0),
	})
	mustRegister(sched, l, ingdom.SourceSpec{
		Name:      incdom.SourceRoadTraffic,
		Fetch:     rt.Fetch,
		Normalize: normalize.RoadTraffic,
	})

	edCfg := root.Prefix("FEED_DISPATCH_")
	ed := dispatch.NewClient(dispatch.Options{
		URL:     edCfg.MustString("URL"),
		Timeout: edCfg.MayDuration("TIMEOUT", 0),
	})
	mustRegister(sched, l, ingdom.SourceSpec{
		Name:      incdom.SourceDispatch,
		Fetch:     ed.Fetch,
		Normalize: normalize.Dispatch,
	})

	urCfg := root.Prefix("FEED_USERREPORTS_")
	if url := urCfg.MayString("URL", ""); url != "" {
		ur := userreports.NewClient(userreports.Options{
			URL:     url,
			Timeout: urCfg.MayDuration("TIMEOUT", 0),
		})
		nf := normalize.UserReports
		if urCfg.MayBool("LEGACY", false) {
			nf = normalize.LegacyReports
		}
		mustRegister(sched, l, ingdom.SourceSpec{
			Name:      incdom.SourceUserReport,
			Fetch:     ur.Fetch,
			Normalize: nf,
		})
	}
}

func mustRegister(sched *ingsvc.Scheduler, l *logger.Logger, spec ingdom.SourceSpec) {
	if err := sched.Register(spec); err != nil {
		l.Panic().Err(err).Str("source", string(spec.Name)).Msg("source registration failed")
	}
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pulsemap/internal/platform/config"
	"pulsemap/internal/platform/logger"
	phttp "pulsemap/internal/platform/net/http"
	"pulsemap/internal/platform/store"

	"pulsemap/internal/adapters/feeds/dispatch"
	"pulsemap/internal/adapters/feeds/roadtraffic"
	"pulsemap/internal/adapters/feeds/userreports"

	"pulsemap/internal/services/api"
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

	root := config.New()
	apiCfg := root.Prefix("CORE_API_")
	pgCfg := root.Prefix("SERVICE_PGSQL_")

	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		AppName: "pulsemap-api",
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

	// warm the spatial index from storage before taking traffic
	rebuilder.Rebuild(context.Background())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched.Start(ctx)

	srv := phttp.NewServer(apiCfg)
	api.Mount(srv.Router(), api.Options{
		Config:     apiCfg,
		Store:      st,
		Query:      engine,
		Categories: incidents,
		Ingest:     sched,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
		l.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			l.Error().Err(err).Msg("http server stopped")
		}
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()

	if err := srv.Shutdown(shCtx); err != nil {
		l.Error().Err(err).Msg("http shutdown failed")
	}
	sched.Stop(shCtx)
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
		Interval:  rtCfg.MayDuration("INTERVAL", 0),
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
		Interval:  edCfg.MayDuration("INTERVAL", 0),
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
			Interval:  urCfg.MayDuration("INTERVAL", 0),
		})
	}
}

func mustRegister(sched *ingsvc.Scheduler, l *logger.Logger, spec ingdom.SourceSpec) {
	if err := sched.Register(spec); err != nil {
		l.Panic().Err(err).Str("source", string(spec.Name)).Msg("source registration failed")
	}
}

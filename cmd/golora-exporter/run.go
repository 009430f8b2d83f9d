package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/d21d3q/golora/internal/config"
	"github.com/d21d3q/golora/internal/crypto"
	"github.com/d21d3q/golora/internal/ingest"
	"github.com/d21d3q/golora/internal/server"
	"github.com/d21d3q/golora/internal/session"
	"github.com/d21d3q/golora/internal/sink"
	promsink "github.com/d21d3q/golora/internal/sink/prometheus"
	"github.com/d21d3q/golora/internal/sink/timescale"
	"github.com/d21d3q/golora/internal/source"
	"github.com/d21d3q/golora/internal/source/mqtt"
)

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	key, err := cfg.TrustedKey()
	if err != nil {
		return err
	}
	verifier, err := crypto.NewVerifier(key)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	packets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "golora",
		Name:      "packets_total",
		Help:      "Packets processed by the ingestion pipeline, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(packets)
	for _, o := range ingest.Outcomes() {
		packets.WithLabelValues(o.String())
	}

	out, closeSinks, err := buildSink(ctx, cfg.Sink, reg)
	if err != nil {
		return err
	}
	defer closeSinks()

	sessions, closeSessions, err := buildSessions(ctx, cfg.Session)
	if err != nil {
		return err
	}
	defer closeSessions()

	src, closeSource, err := buildSource(ctx, cfg.Source)
	if err != nil {
		return err
	}
	defer closeSource()

	pipeline := ingest.New(verifier, sessions, out,
		ingest.WithObserver(func(r ingest.Result) {
			packets.WithLabelValues(r.Outcome.String()).Inc()
		}))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := server.New(cfg.HTTP, sessions, reg)
	srvErr := make(chan error, 1)
	go func() {
		err := srv.Run(ctx)
		if err != nil {
			cancel()
		}
		srvErr <- err
	}()

	logrus.WithFields(logrus.Fields{
		"source":  cfg.Source.Kind,
		"session": cfg.Session.Backend,
		"key":     fmt.Sprintf("%x", verifier.PublicKey()),
	}).Info("ingestion started")

	if err := pipeline.Run(ctx, src); err != nil && ctx.Err() == nil {
		return err
	}
	if ctx.Err() == nil {
		logrus.Info("packet source exhausted, serving metrics until interrupted")
	}
	return <-srvErr
}

func buildSink(ctx context.Context, cfg config.SinkConfig, reg prometheus.Registerer) (sink.Sink, func(), error) {
	var sinks sink.Multi
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if cfg.Prometheus.Enabled {
		sinks = append(sinks, promsink.New(reg, cfg.Prometheus.Namespace))
	}
	if cfg.Timescale.Enabled {
		db, err := timescale.Connect(ctx, cfg.Timescale.Config)
		if err != nil {
			return nil, closeAll, err
		}
		ts, err := timescale.New(db, cfg.Timescale.Table)
		if err != nil {
			_ = db.Close()
			return nil, closeAll, err
		}
		closers = append(closers, func() { _ = ts.Close() })
		if cfg.Timescale.EnsureSchema {
			if err := ts.EnsureSchema(ctx); err != nil {
				closeAll()
				return nil, func() {}, err
			}
		}
		sinks = append(sinks, sink.WithRetry(ts, cfg.Retry.MaxElapsed))
	}
	var out sink.Sink = sinks
	if len(sinks) == 1 {
		out = sinks[0]
	}
	return sink.WithTimeout(out, cfg.Timeout), closeAll, nil
}

func buildSessions(ctx context.Context, cfg config.SessionConfig) (session.Store, func(), error) {
	if cfg.Backend != config.BackendRedis {
		return session.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, func() {}, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr(), err)
	}
	store := session.NewRedisStore(client, cfg.Redis.Prefix)
	return store, func() { _ = store.Close() }, nil
}

func buildSource(ctx context.Context, cfg config.SourceConfig) (source.Source, func(), error) {
	if cfg.Kind != config.SourceMQTT {
		src := source.NewHexLines(os.Stdin)
		return src, src.Close, nil
	}
	src := mqtt.New(cfg.MQTT)
	if err := src.Start(ctx); err != nil {
		src.Close()
		return nil, func() {}, err
	}
	return src, src.Close, nil
}

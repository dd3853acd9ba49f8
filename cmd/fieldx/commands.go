package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/fieldx/internal/algorithm"
	"github.com/Faultbox/fieldx/internal/cluster"
	"github.com/Faultbox/fieldx/internal/config"
	"github.com/Faultbox/fieldx/internal/export"
	"github.com/Faultbox/fieldx/internal/geometry"
	"github.com/Faultbox/fieldx/internal/grid"
	"github.com/Faultbox/fieldx/internal/logger"
	"github.com/Faultbox/fieldx/internal/metrics"
	"github.com/Faultbox/fieldx/internal/network"
)

// setup loads the configuration and starts logging for a command.
func setup(name string, args []string) (*config.Config, error) {
	cfg, _, err := loadConfig(name, args)
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded",
		zap.String("command", name),
		zap.String("algorithm", cfg.Extraction.Algorithm),
		zap.String("role", cfg.Cluster.Role),
		zap.String("transport", cfg.Cluster.Transport))
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startMetrics serves the registry when metrics are enabled. The returned
// Metrics is nil otherwise, which every recorder accepts.
func startMetrics(cfg config.MetricsConfig, log *zap.Logger) (*metrics.Metrics, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}
	reg, m := metrics.NewRegistry()
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(reg))
	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", cfg.Listen), zap.String("path", cfg.Path))
	return m, func() { shutdown(srv) }
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func cmdExtract(args []string) error {
	cfg, err := setup("extract", args)
	if err != nil {
		return err
	}
	defer logger.Sync()
	return runExtract(cfg)
}

func runExtract(cfg *config.Config) error {
	log := logger.Named("extract")

	ctx, stop := signalContext()
	defer stop()

	m, stopMetrics := startMetrics(cfg.Metrics, log)
	defer stopMetrics()

	p, err := buildParams(cfg, logger.Log, m)
	if err != nil {
		return err
	}
	el, err := newElement(cfg, p)
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := algorithm.NewDriver(el, algorithm.DriverOptions{
		Tick:        cfg.Execution.Tick,
		MaxElements: cfg.Execution.MaxElements,
		Logger:      logger.Log,
		Metrics:     m,
	}).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if !res.Complete {
		logger.Warn("extraction stopped before completion",
			zap.Int("max_elements", cfg.Execution.MaxElements),
			zap.Bool("interrupted", ctx.Err() != nil))
	}
	if err := export.SaveOBJ(cfg.Extraction.Output, el.Sink(), exportOptions(cfg)); err != nil {
		return err
	}
	log.Info("extraction written",
		zap.String("file", cfg.Extraction.Output),
		zap.Int("primitives", res.Primitives),
		zap.Int("ticks", res.Ticks),
		zap.Bool("complete", res.Complete),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// openBroadcaster starts the configured master transport. The cleanup
// function flushes and closes it.
func openBroadcaster(ctx context.Context, cfg config.ClusterConfig, log *zap.Logger) (network.Broadcaster, func(), error) {
	switch cfg.Transport {
	case "nats":
		b, err := network.NewNATSBroadcaster(network.NATSOptions{
			URL:     cfg.NATSURL,
			Subject: cfg.Subject,
			Name:    "fieldx-master",
			Logger:  log,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	default:
		hub := network.NewWSHub(network.WSOptions{QueueSize: cfg.QueueSize, Logger: log})
		mux := http.NewServeMux()
		mux.Handle("/stream", hub)
		srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("stream server failed", zap.Error(err))
			}
		}()
		cleanup := func() {
			_ = hub.Close()
			shutdown(srv)
		}
		log.Info("serving stream", zap.String("addr", cfg.Listen))

		if cfg.WaitReplicas > 0 {
			wctx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
			defer cancel()
			log.Info("waiting for replicas", zap.Int("count", cfg.WaitReplicas))
			if err := hub.WaitForClients(wctx, cfg.WaitReplicas); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("waiting for %d replicas: %w", cfg.WaitReplicas, err)
			}
		}
		return hub, cleanup, nil
	}
}

func cmdServe(args []string) error {
	cfg, err := setup("serve", args)
	if err != nil {
		return err
	}
	defer logger.Sync()
	return runServe(cfg)
}

func runServe(cfg *config.Config) error {
	log := logger.Named("serve")

	ctx, stop := signalContext()
	defer stop()

	m, stopMetrics := startMetrics(cfg.Metrics, log)
	defer stopMetrics()

	p, err := buildParams(cfg, logger.Log, m)
	if err != nil {
		return err
	}
	el, err := newElement(cfg, p)
	if err != nil {
		return err
	}

	out, closeOut, err := openBroadcaster(ctx, cfg.Cluster, logger.Log)
	if err != nil {
		return err
	}
	defer closeOut()

	master := cluster.NewMaster(el.Sink(), out, cluster.MasterOptions{
		Algorithm: el.Name(),
		MaxBatch:  cfg.Cluster.MaxBatch,
		Logger:    logger.Log,
		Metrics:   m,
	})
	log.Info("streaming", zap.String("stream", master.Stream().String()), zap.String("algorithm", el.Name()))

	res, err := algorithm.NewDriver(el, algorithm.DriverOptions{
		Tick:        cfg.Execution.Tick,
		MaxElements: cfg.Execution.MaxElements,
		Master:      master,
		Logger:      logger.Log,
		Metrics:     m,
	}).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stream complete", zap.Int("primitives", res.Primitives), zap.Int("ticks", res.Ticks))

	if cfg.Extraction.Output == "" {
		return nil
	}
	return export.SaveOBJ(cfg.Extraction.Output, el.Sink(), exportOptions(cfg))
}

// cmdRun picks extract, serve or replica from cluster.role.
func cmdRun(args []string) error {
	cfg, err := setup("run", args)
	if err != nil {
		return err
	}
	defer logger.Sync()
	switch cfg.Cluster.Role {
	case "master":
		return runServe(cfg)
	case "replica":
		return runReplica(cfg)
	default:
		return runExtract(cfg)
	}
}

func openReceiver(ctx context.Context, cfg config.ClusterConfig, log *zap.Logger) (network.Receiver, error) {
	switch cfg.Transport {
	case "nats":
		return network.NewNATSReceiver(network.NATSOptions{
			URL:     cfg.NATSURL,
			Subject: cfg.Subject,
			Name:    "fieldx-replica",
			Logger:  log,
		})
	default:
		return network.DialWS(ctx, cfg.Address)
	}
}

func cmdReplica(args []string) error {
	cfg, err := setup("replica", args)
	if err != nil {
		return err
	}
	defer logger.Sync()
	return runReplica(cfg)
}

func runReplica(cfg *config.Config) error {
	log := logger.Named("replica")

	ctx, stop := signalContext()
	defer stop()

	m, stopMetrics := startMetrics(cfg.Metrics, log)
	defer stopMetrics()

	in, err := openReceiver(ctx, cfg.Cluster, logger.Log)
	if err != nil {
		return err
	}
	defer in.Close()

	batches := 0
	r := cluster.NewReplica(in, cluster.ReplicaOptions{
		OnBatch: func(s *geometry.Sink) {
			batches++
			log.Debug("batch applied", zap.Int("batch", batches), zap.Int("primitives", s.NumPrimitives()))
		},
		Logger:  logger.Log,
		Metrics: m,
	})
	if err := r.Receive(ctx); err != nil {
		return err
	}
	log.Info("stream received",
		zap.String("stream", r.Stream().String()),
		zap.String("algorithm", r.Algorithm()),
		zap.Int("primitives", r.Sink().NumPrimitives()))

	if r.Stream() == uuid.Nil || cfg.Extraction.Output == "" {
		return nil
	}
	return export.SaveOBJ(cfg.Extraction.Output, r.Sink(), exportOptions(cfg))
}

func cmdAlgorithms(args []string) error {
	if _, _, err := loadConfig("algorithms", args); err != nil {
		return err
	}
	fmt.Printf("%-12s %-8s %-8s %s\n", "NAME", "GLOBAL", "SEEDED", "DESCRIPTION")
	for _, name := range algorithm.Default.Names() {
		info, err := algorithm.Default.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %-8s %-8s %s\n", name,
			yesNo(algorithm.Default.HasGlobalCreator(name)),
			yesNo(algorithm.Default.HasSeededCreator(name)),
			info.Description)
	}
	fmt.Printf("\nScalar fields: %s\n", strings.Join(grid.ScalarFieldNames(), ", "))
	fmt.Printf("Vector fields: %s\n", strings.Join(grid.VectorFieldNames(), ", "))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// cmdConfig prints the effective configuration. With "init" it is saved
// to the user config directory, with any other argument to that file.
func cmdConfig(args []string) error {
	cfg, fs, err := loadConfig("config", args)
	if err != nil {
		return err
	}
	switch path := fs.Arg(0); path {
	case "":
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	case "init":
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
		return nil
	default:
		if err := cfg.SaveTo(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	}
}

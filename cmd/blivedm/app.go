package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xyself/blivedm/internal/config"
	"github.com/xyself/blivedm/internal/errors"
	"github.com/xyself/blivedm/internal/otel"
	"github.com/xyself/blivedm/pkg/archive"
	"github.com/xyself/blivedm/pkg/client"
	"github.com/xyself/blivedm/pkg/dispatch"
	"github.com/xyself/blivedm/pkg/metrics"
)

// shutdownTimeout bounds the final archive flush and span export.
const shutdownTimeout = 10 * time.Second

// app holds what every long-running command shares.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	archiver *archive.Archiver

	closers []func(context.Context) error
}

// newApp loads and validates the configuration, applies override (for
// command flags), then sets up logging, metrics, tracing and the archive.
func newApp(ctx context.Context, g *globalFlags, override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(g.configDir)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	if cfg.Path() != "" {
		logger.Debug("config loaded", "path", cfg.Path())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(metrics.WithRegistry(reg)),
	}

	shutdown, err := otel.Setup(ctx, otel.Options{
		Endpoint:    cfg.OTel.Endpoint,
		ServiceName: cfg.OTel.ServiceName,
		Version:     version,
		Insecure:    cfg.OTel.Insecure,
	})
	if err != nil {
		return nil, errors.FromError(err, "E201").WithDetail("Failed to set up trace export: " + err.Error())
	}
	a.closers = append(a.closers, shutdown)

	if err := a.openArchive(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// openArchive starts an archiver when a SQLite path or S3 bucket is
// configured.
func (a *app) openArchive() error {
	ac := a.cfg.Archive
	var sinks []archive.Sink

	if ac.SQLite != "" {
		db, err := archive.OpenSQLite(ac.SQLite)
		if err != nil {
			return errors.New("E301").Wrap(err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		sinks = append(sinks, db)
	}
	if ac.S3Bucket != "" {
		sinks = append(sinks, archive.NewS3Sink(newS3Client(ac), ac.S3Bucket, ac.S3Prefix))
	}
	if len(sinks) == 0 {
		return nil
	}

	sink := archive.Tee(sinks...)
	a.archiver = archive.New(sink,
		archive.WithBatchSize(ac.BatchSize),
		archive.WithFlushInterval(time.Duration(ac.FlushInterval)),
		archive.WithLogger(a.logger),
		archive.WithMetrics(a.metrics),
	)
	// Runs before the sinks are closed.
	a.closers = append(a.closers, a.archiver.Close)
	a.logger.Info("archiving notifications", "sink", sink.Name())
	return nil
}

// newS3Client builds a client from the archive settings alone. A custom
// endpoint (MinIO, R2) switches to path-style addressing.
func newS3Client(ac config.ArchiveConfig) *s3.Client {
	var creds aws.CredentialsProvider = aws.AnonymousCredentials{}
	if ac.AccessKeyID != "" {
		static := aws.Credentials{
			AccessKeyID:     ac.AccessKeyID,
			SecretAccessKey: ac.SecretAccessKey,
			SessionToken:    ac.SessionToken,
			Source:          "blivedm",
		}
		creds = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return static, nil }))
	}

	opts := s3.Options{
		Region:      ac.S3Region,
		Credentials: creds,
	}
	if ac.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(ac.S3Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// clientOptions returns the options every session of this app uses.
func (a *app) clientOptions(resolver client.Resolver, h client.Handler) []client.Option {
	var routerOpts []dispatch.Option
	if a.archiver != nil {
		routerOpts = append(routerOpts, dispatch.WithObserver(a.archiver.Observe))
	}
	return []client.Option{
		client.WithResolver(resolver),
		client.WithHandler(h),
		client.WithConfig(a.cfg.ClientConfig()),
		client.WithLogger(a.logger),
		client.WithMetrics(a.metrics),
		client.WithRouterOptions(routerOpts...),
	}
}

// close runs the closers in reverse order with a fresh deadline, since
// the command context is usually cancelled by then.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := stderrors.Join(errs...); err != nil {
		a.logger.Error("shutdown incomplete", "error", err)
		return err
	}
	return nil
}

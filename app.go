package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/jobs"
	"oa-workflow/providers/activityinsight"
	"oa-workflow/providers/httpclient"
	"oa-workflow/providers/oaworks"
	"oa-workflow/providers/openaccessbutton"
	"oa-workflow/providers/permissions"
	"oa-workflow/providers/scholarsphere"
	"oa-workflow/providers/unpaywall"
	"oa-workflow/services"
	"oa-workflow/storage"
)

// app hält alle verdrahteten Komponenten eines Prozesses.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *storage.Store

	publisher  message.Publisher
	subscriber message.Subscriber
	queue      *jobs.Queue

	workflow   *services.OAWorkflow
	postprints *services.PostprintSync
	locations  *services.LocationService
	handlers   services.JobHandlers

	closers []func() error
}

func permissionSources(cfg *config.Config, http permissions.Getter, logger *zap.Logger) ([]permissions.Source, error) {
	var sources []permissions.Source
	for _, name := range cfg.PermissionSourceNames() {
		switch name {
		case oaworks.Name:
			sources = append(sources, oaworks.NewFetcher(cfg, http, logger))
		case openaccessbutton.Name:
			sources = append(sources, openaccessbutton.NewFetcher(cfg, http, logger))
		default:
			return nil, fmt.Errorf("unknown permission source %q", name)
		}
	}
	return sources, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	db, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to database.")
	a.store = storage.NewStore(db, logger)
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	http := httpclient.New(httpclient.Config{
		Timeout:     cfg.HTTPTimeout,
		MaxAttempts: cfg.HTTPMaxAttempts,
		BaseDelay:   cfg.HTTPRetryBaseDelay,
		MaxDelay:    cfg.HTTPRetryMaxDelay,
		RateLimit:   cfg.HTTPRateLimit,
		UserAgent:   cfg.HTTPUserAgent,
	}, logger)

	sources, err := permissionSources(cfg, http, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	s3Client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	blobs := storage.NewBlobStore(s3Client, cfg)

	var lock services.RunLocker
	if client := storage.NewRedisClient(cfg); client != nil {
		lock = storage.NewRedisLock(client, cfg.RunLockTTL)
		a.closers = append(a.closers, client.Close)
	} else {
		logger.Info("REDIS_ADDR nicht gesetzt, Lauf-Lock deaktiviert")
	}

	a.publisher, a.subscriber, err = jobs.NewPubSub(cfg, jobs.NewZapLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.publisher.Close, a.subscriber.Close)
	a.queue = jobs.NewQueue(a.publisher, cfg.JobTopic, logger)

	up := unpaywall.NewFetcher(cfg, http, logger)
	policy := services.NewDefaultEligibility()
	search := services.NewOAMetadataSearch(a.store, up, scholarsphere.NewLookup(cfg, http, logger), logger)

	a.workflow = services.NewOAWorkflow(a.store, a.queue, search, policy, lock, logger)
	a.workflow.DOIRetryAfter = cfg.DOIVerificationRetryAfter
	a.postprints = services.NewPostprintSync(a.store, a.queue, policy, logger)
	a.locations = services.NewLocationService(a.store, http, logger)
	a.handlers = services.JobHandlers{
		DOIVerifier: services.NewDOIVerifier(cfg, a.store, up, logger),
		Permissions: services.NewPermissionsChecker(a.store, sources, logger),
		Files: services.NewFileDownloader(a.store, activityinsight.NewClient(cfg, http, logger), blobs,
			services.NewPDFVersionChecker(), a.queue, logger),
	}
	return a, nil
}

// newWorker erstellt den Job-Worker und registriert alle Handler.
func (a *app) newWorker() (*jobs.Worker, error) {
	w, err := jobs.NewWorker(jobs.WorkerConfigFrom(a.cfg), a.publisher, a.subscriber, a.logger)
	if err != nil {
		return nil, err
	}
	a.handlers.Register(w)
	return w, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

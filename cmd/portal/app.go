package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"portal/internal/accounts"
	"portal/internal/audit"
	"portal/internal/platform/config"
	"portal/internal/platform/httpclient"
	"portal/internal/platform/postgres"
	platformredis "portal/internal/platform/redis"
	"portal/internal/profile"
	"portal/internal/session"
	"portal/internal/session/store"
	filestore "portal/internal/session/store/file"
	"portal/internal/session/store/memory"
	pgstore "portal/internal/session/store/postgres"
	redisstore "portal/internal/session/store/redis"
	"portal/internal/todo"
	httptransport "portal/internal/transport/http"
	"portal/pkg/platform/circuit"
)

// app holds everything one invocation needs. close releases it in reverse
// order of construction.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	out      io.Writer
	accounts *accounts.Client
	manager  *session.Manager
	profile  *profile.Service
	todo     *todo.Service
	auditor  *audit.Worker
	checks   []namedCheck
	closers  []func()
}

type namedCheck struct {
	name  string
	check httptransport.HealthCheck
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, out: out}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	breaker := circuit.New("accounts-api",
		circuit.WithFailureThreshold(cfg.API.BreakerThreshold),
		circuit.WithCooldown(cfg.API.BreakerCooldown),
	)
	hc, err := httpclient.New(cfg.API.BaseURL,
		httpclient.WithTimeout(cfg.API.Timeout),
		httpclient.WithBreaker(breaker),
		httpclient.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.accounts, err = accounts.New(hc)
	if err != nil {
		return nil, err
	}
	todoClient, err := todo.NewClient(hc)
	if err != nil {
		return nil, err
	}

	tokens, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	sink, err := a.openAuditSink(ctx)
	if err != nil {
		return nil, err
	}
	a.auditor = audit.NewWorker(sink, cfg.Audit.BufferSize, audit.WithLogger(logger))
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	go func() { _ = a.auditor.Run(workerCtx) }()
	a.closers = append(a.closers, func() {
		stopWorker()
		<-a.auditor.Done()
	})

	a.manager, err = session.New(tokens, a.accounts,
		session.WithLogger(logger),
		session.WithNavigator(newNavigator(out, logger)),
		session.WithAuditPublisher(a.auditor),
		session.WithVerifyTimeout(cfg.API.VerifyTimeout),
		session.WithLogoutTimeout(cfg.API.LogoutTimeout),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.manager.Close)

	a.profile, err = profile.New(a.manager, a.accounts,
		profile.WithLogger(logger),
		profile.WithAuditPublisher(a.auditor),
	)
	if err != nil {
		return nil, err
	}
	a.todo, err = todo.NewService(a.manager, todoClient, todo.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store.TokenStore, error) {
	storeLogger := a.logger.With("store", a.cfg.Store.Backend)
	switch a.cfg.Store.Backend {
	case config.StoreMemory:
		return memory.New(memory.NewBackend()), nil
	case config.StoreFile:
		return filestore.New(a.cfg.Store.Path,
			filestore.WithPollInterval(a.cfg.Store.PollInterval),
			filestore.WithLogger(storeLogger),
		)
	case config.StoreRedis:
		client, err := platformredis.New(ctx, a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checks = append(a.checks, namedCheck{name: "redis", check: client.Health})
		return redisstore.New(client.Client, a.cfg.Store.Namespace, redisstore.WithLogger(storeLogger))
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, a.cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.checks = append(a.checks, namedCheck{name: "postgres", check: pool.Ping})
		st, err := pgstore.New(pool, a.cfg.Store.Namespace, pgstore.WithLogger(storeLogger))
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure session schema: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
}

func (a *app) openAuditSink(ctx context.Context) (audit.Store, error) {
	if len(a.cfg.Audit.KafkaBrokers) == 0 {
		return audit.NewLogStore(a.logger), nil
	}
	ks, err := audit.NewKafkaStore(a.cfg.Audit.KafkaBrokers, a.cfg.Audit.KafkaTopic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, ks.Close)
	if err := ks.EnsureTopic(ctx); err != nil {
		return nil, err
	}
	a.checks = append(a.checks, namedCheck{name: "kafka", check: ks.Ping})
	return ks, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

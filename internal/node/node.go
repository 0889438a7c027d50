// Package node assembles the anchoring engine from configuration so it can
// be embedded in any binary (daemon, CLI).
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lightningnetwork/lnd/clock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/certledger/certanchor/config"
	"github.com/certledger/certanchor/internal/anchor"
	"github.com/certledger/certanchor/internal/blockfrost"
	"github.com/certledger/certanchor/internal/certstore/pgstore"
	"github.com/certledger/certanchor/internal/chain"
	klog "github.com/certledger/certanchor/internal/log"
	"github.com/certledger/certanchor/internal/metrics"
	"github.com/certledger/certanchor/internal/reconcile"
	"github.com/certledger/certanchor/internal/storage"
	"github.com/certledger/certanchor/internal/tenant"
	"github.com/certledger/certanchor/internal/walletlock"
)

// ErrInactiveTenant is returned when resolving a tenant that is not active.
var ErrInactiveTenant = errors.New("tenant is not active")

// Option customizes New.
type Option func(*options)

type options struct {
	client  chain.Client
	clock   clock.Clock
	logInit bool
}

// WithChainClient replaces the provider client built from config.
func WithChainClient(c chain.Client) Option {
	return func(o *options) { o.client = c }
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithoutLogInit leaves the global logger untouched.
func WithoutLogInit() Option {
	return func(o *options) { o.logInit = false }
}

// Node is a fully-initialized anchoring engine.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Storage
	db        storage.DB
	journalDB storage.DB
	pgPool    *pgxpool.Pool
	registry  tenant.Registry
	router    tenant.Router
	journal   *anchor.Journal

	// Chain and wallet
	chain  chain.Client
	redis  *goredis.Client
	locker walletlock.Locker

	service    *anchor.Service
	reconciler *reconcile.Reconciler
	metrics    *metrics.Metrics
	metricsSrv *http.Server

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	startOnce sync.Once
}

// New creates and initializes a Node. It performs all setup steps (logger,
// storage, tenant routing, wallet lock, provider, services) but does NOT
// start background work. Call Start() for that.
func New(cfg *config.Config, opts ...Option) (n *Node, err error) {
	o := options{logInit: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.NewDefaultClock()
	}

	// ── 1. Validate ─────────────────────────────────────────────────
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if err := config.RequireSecrets(cfg); err != nil {
		return nil, err
	}
	params, err := cfg.ProtocolParams()
	if err != nil {
		return nil, err
	}

	// ── 2. Init logger ──────────────────────────────────────────────
	if o.logInit {
		logFile := cfg.Log.File
		if logFile == "" && cfg.Store.Backend != config.StoreMemory {
			if err := os.MkdirAll(cfg.LogsDir(), 0700); err != nil {
				return nil, fmt.Errorf("creating logs dir: %w", err)
			}
			logFile = filepath.Join(cfg.LogsDir(), "certanchor.log")
		}
		if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
			return nil, fmt.Errorf("initializing logger: %w", err)
		}
	}
	logger := klog.WithComponent("node")
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("store", cfg.Store.Backend).
		Str("lock", cfg.Lock.Backend).
		Msg("Starting CertAnchor engine")

	ctx, cancel := context.WithCancel(context.Background())
	n = &Node{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	// ── 3. Storage ──────────────────────────────────────────────────
	if err := n.openStorage(ctx, o.clock); err != nil {
		return nil, err
	}

	// ── 4. Wallet lock ──────────────────────────────────────────────
	switch cfg.Lock.Backend {
	case config.LockRedis:
		n.redis, err = walletlock.NewRedisClient(ctx, cfg.Lock.RedisAddr, cfg.Lock.RedisPassword, cfg.Lock.RedisDB)
		if err != nil {
			return nil, err
		}
		n.locker = walletlock.NewRedis(n.redis, walletlock.WithTTL(cfg.Lock.TTL))
	default:
		n.locker = walletlock.NewLocal()
	}

	// ── 5. Chain provider ───────────────────────────────────────────
	n.chain = o.client
	if n.chain == nil {
		n.chain, err = blockfrost.New(blockfrost.Config{
			BaseURL:       cfg.Provider.BaseURL,
			ProjectID:     cfg.Provider.ProjectID,
			ReadTimeout:   cfg.Provider.ReadTimeout,
			SubmitTimeout: cfg.Provider.SubmitTimeout,
			RateLimit:     cfg.Provider.RateLimit,
			Burst:         cfg.Provider.Burst,
		})
		if err != nil {
			return nil, err
		}
	}

	// ── 6. Anchoring service ────────────────────────────────────────
	n.service, err = anchor.New(anchor.Config{
		Network:         cfg.Network.Ledger(),
		Mnemonic:        cfg.Wallet.Mnemonic,
		Params:          params,
		TTLWindow:       cfg.Anchor.TTLWindow,
		MaxRebuilds:     cfg.Anchor.MaxRebuilds,
		MaxMetadataSize: cfg.Anchor.MaxMetadataSize,
		LockTimeout:     cfg.Lock.Timeout,
		RebuildDelay:    cfg.Anchor.RebuildDelay,
	}, n.chain, n.locker, n.journal)
	if err != nil {
		return nil, fmt.Errorf("anchor service: %w", err)
	}
	n.service.SetMetrics(n.metrics)
	n.service.SetClock(o.clock)
	logger.Info().Str("address", n.service.Address().String()).Msg("Funding wallet ready")

	// ── 7. Reconciler ───────────────────────────────────────────────
	n.reconciler, err = reconcile.New(reconcile.Config{
		Directory:         n.registry,
		Router:            n.router,
		Chain:             n.chain,
		Interval:          cfg.Reconcile.Interval,
		RunOnStart:        cfg.Reconcile.RunOnStart,
		TenantConcurrency: cfg.Reconcile.TenantConcurrency,
		MaxInFlight:       cfg.Reconcile.MaxInFlight,
		Recovery:          n.journal,
		Metrics:           n.metrics,
		Clock:             o.clock,
	})
	if err != nil {
		return nil, err
	}

	// ── 8. Metrics endpoint ─────────────────────────────────────────
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", n.metrics.Handler())
		n.metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return n, nil
}

// openStorage opens the record store backend, the tenant directory and the
// recovery journal.
func (n *Node) openStorage(ctx context.Context, clk clock.Clock) error {
	cfg := n.cfg
	switch cfg.Store.Backend {
	case config.StoreMemory:
		n.db = storage.NewMemory()
		n.journalDB = n.db
	case config.StoreBadger:
		db, err := storage.NewBadger(cfg.StoreDir())
		if err != nil {
			return fmt.Errorf("open database at %s: %w", cfg.StoreDir(), err)
		}
		n.db = db
		n.logger.Info().Str("path", cfg.StoreDir()).Msg("Database opened")
	case config.StorePostgres:
		pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
			DSN:             cfg.Store.DSN,
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		}, klog.Storage)
		if err != nil {
			return err
		}
		n.pgPool = pool
		if err := pgstore.MigrateDirectory(ctx, pool); err != nil {
			return err
		}
		n.registry = pgstore.NewDirectory(pool)
		n.router = pgstore.NewRouter(pool, clk)
	}

	if n.db != nil {
		n.registry = tenant.NewKVDirectory(n.db)
		n.router = tenant.NewKVRouter(n.db, clk.Now)
	}
	if n.journalDB == nil {
		db, err := storage.NewBadger(cfg.JournalDir())
		if err != nil {
			return fmt.Errorf("open journal at %s: %w", cfg.JournalDir(), err)
		}
		n.journalDB = db
	}
	n.journal = anchor.NewJournal(storage.NewPrefixDB(n.journalDB, []byte("engine/")))
	return nil
}

// Start replays the recovery journal and launches the reconciler and the
// metrics endpoint.
func (n *Node) Start() error {
	var err error
	n.startOnce.Do(func() {
		if _, err = n.ReplayJournal(n.ctx); err != nil {
			n.logger.Warn().Err(err).Msg("Journal replay incomplete")
			err = nil
		}

		if n.cfg.Reconcile.Enabled {
			if err = n.reconciler.Start(); err != nil {
				return
			}
		}

		if n.metricsSrv != nil {
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.logger.Info().Str("addr", n.cfg.Metrics.Listen).Msg("Metrics endpoint listening")
				if err := n.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					n.logger.Error().Err(err).Msg("Metrics endpoint failed")
				}
			}()
		}
		n.logger.Info().Msg("Engine started")
	})
	return err
}

// Stop shuts down background work and releases resources.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.logger.Info().Msg("Shutting down...")
		if err := n.reconciler.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("Reconciler stop")
		}
		if n.metricsSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := n.metricsSrv.Shutdown(ctx); err != nil {
				n.logger.Warn().Err(err).Msg("Metrics endpoint shutdown")
			}
			cancel()
		}
		n.wg.Wait()
		n.close()
		n.logger.Info().Msg("Shutdown complete")
	})
}

func (n *Node) close() {
	n.cancel()
	if n.redis != nil {
		if err := n.redis.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("Close redis")
		}
	}
	if n.pgPool != nil {
		n.pgPool.Close()
	}
	if n.journalDB != nil && n.journalDB != n.db {
		if err := n.journalDB.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("Close journal")
		}
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("Close database")
		}
	}
}

// ReplayJournal restores records of submissions that reached the chain but
// were not stored, and settles ambiguous submissions against the chain.
func (n *Node) ReplayJournal(ctx context.Context) (int, error) {
	restored, err := n.journal.Replay(ctx, n.router, n.chain)
	if restored > 0 {
		n.logger.Info().Int("records", restored).Msg("Restored journaled submissions")
	}
	return restored, err
}

// Resolve looks up an active tenant by name and opens its store.
func (n *Node) Resolve(ctx context.Context, name string) (tenant.Context, error) {
	t, err := n.registry.Lookup(ctx, name)
	if err != nil {
		return tenant.Context{}, err
	}
	if !t.Active() {
		return tenant.Context{}, fmt.Errorf("%w: %s", ErrInactiveTenant, name)
	}
	return tenant.Resolve(ctx, n.router, t)
}

// Service returns the anchoring service.
func (n *Node) Service() *anchor.Service { return n.service }

// Registry returns the tenant directory.
func (n *Node) Registry() tenant.Registry { return n.registry }

// Reconciler returns the confirmation reconciler.
func (n *Node) Reconciler() *reconcile.Reconciler { return n.reconciler }

// Metrics returns the engine collectors.
func (n *Node) Metrics() *metrics.Metrics { return n.metrics }

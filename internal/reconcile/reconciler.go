// Package reconcile moves pending certificate records to their block
// reference once their transaction is seen in a block.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/certledger/certanchor/internal/certstore"
	"github.com/certledger/certanchor/internal/chain"
	klog "github.com/certledger/certanchor/internal/log"
	"github.com/certledger/certanchor/internal/metrics"
	"github.com/certledger/certanchor/internal/tenant"
	"github.com/certledger/certanchor/pkg/types"
)

// Defaults.
const (
	DefaultInterval    = 24 * time.Hour
	DefaultMaxInFlight = 4
)

// Config configures a Reconciler.
type Config struct {
	Directory tenant.Directory
	Router    tenant.Router
	Chain     chain.Client

	// Ticker drives scheduled passes. Defaults to a ticker firing every
	// Interval.
	Ticker   ticker.Ticker
	Interval time.Duration
	// RunOnStart runs a pass as soon as Start is called.
	RunOnStart bool
	// TenantConcurrency bounds tenants processed in parallel. Defaults to 1.
	TenantConcurrency int
	// MaxInFlight bounds concurrent chain lookups across tenants.
	MaxInFlight int64

	// Recovery, when set, settles journaled submissions before each pass so
	// records it restores are checked in the same pass.
	Recovery Recovery

	Metrics *metrics.Metrics
	Clock   clock.Clock
}

// Recovery restores submissions that reached, or may have reached, the
// ledger without a record in their tenant store.
type Recovery interface {
	Replay(ctx context.Context, router tenant.Router, ledger chain.Client) (int, error)
}

// Summary counts the outcome of one pass.
type Summary struct {
	Tenants        int
	TenantFailures int
	Recovered      int
	Checked        int
	Confirmed      int
	Pending        int
	Failures       int
	Panicked       bool
}

func (s *Summary) add(o Summary) {
	s.Tenants += o.Tenants
	s.TenantFailures += o.TenantFailures
	s.Recovered += o.Recovered
	s.Checked += o.Checked
	s.Confirmed += o.Confirmed
	s.Pending += o.Pending
	s.Failures += o.Failures
	s.Panicked = s.Panicked || o.Panicked
}

// Reconciler confirms pending records of every active tenant.
type Reconciler struct {
	started uint32
	stopped uint32

	cfg    Config
	sem    *semaphore.Weighted
	logger zerolog.Logger

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Directory == nil || cfg.Router == nil || cfg.Chain == nil {
		return nil, errors.New("reconcile: directory, router and chain are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Ticker == nil {
		cfg.Ticker = ticker.New(cfg.Interval)
	}
	if cfg.TenantConcurrency <= 0 {
		cfg.TenantConcurrency = 1
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	return &Reconciler{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxInFlight),
		logger: klog.Reconcile,
		quit:   make(chan struct{}),
	}, nil
}

// Start launches the scheduling loop.
func (r *Reconciler) Start() error {
	if !atomic.CompareAndSwapUint32(&r.started, 0, 1) {
		return nil
	}
	r.logger.Info().Dur("interval", r.cfg.Interval).Msg("Confirmation reconciler started")

	r.cfg.Ticker.Resume()
	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop halts the loop and waits for a running pass to finish.
func (r *Reconciler) Stop() error {
	if !atomic.CompareAndSwapUint32(&r.stopped, 0, 1) {
		return nil
	}
	close(r.quit)
	r.cfg.Ticker.Stop()
	r.wg.Wait()
	r.logger.Info().Msg("Confirmation reconciler stopped")
	return nil
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if r.cfg.RunOnStart {
		r.RunOnce(ctx)
	}
	for {
		select {
		case <-r.cfg.Ticker.Ticks():
			r.RunOnce(ctx)
		case <-r.quit:
			return
		}
	}
}

// RunOnce performs one pass over all active tenants. Failures of one
// certificate or tenant are logged and do not affect the others.
func (r *Reconciler) RunOnce(ctx context.Context) (sum Summary) {
	start := r.cfg.Clock.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("Reconciliation pass panicked")
			sum.Panicked = true
		}
		elapsed := r.cfg.Clock.Now().Sub(start)
		r.cfg.Metrics.ReconcileRun(elapsed, sum.Confirmed, sum.Pending, sum.Failures, sum.TenantFailures)
		r.logger.Info().
			Int("tenants", sum.Tenants).
			Int("recovered", sum.Recovered).
			Int("checked", sum.Checked).
			Int("confirmed", sum.Confirmed).
			Int("pending", sum.Pending).
			Int("failures", sum.Failures).
			Int("tenant_failures", sum.TenantFailures).
			Dur("elapsed", elapsed).
			Msg("Reconciliation pass complete")
	}()

	if r.cfg.Recovery != nil {
		n, err := r.cfg.Recovery.Replay(ctx, r.cfg.Router, r.cfg.Chain)
		sum.Recovered = n
		if err != nil {
			r.logger.Warn().Err(err).Int("settled", n).Msg("Journal recovery incomplete")
		}
	}

	tenants, err := r.cfg.Directory.ActiveTenants(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("List tenants failed")
		sum.TenantFailures++
		return sum
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.cfg.TenantConcurrency)
	for _, t := range tenants {
		g.Go(func() error {
			ts := r.reconcileTenant(ctx, t)
			mu.Lock()
			sum.add(ts)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return sum
}

func (r *Reconciler) reconcileTenant(ctx context.Context, t tenant.Tenant) (sum Summary) {
	logger := klog.WithTenant(r.logger, t.Name)
	sum.Tenants = 1
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("Tenant reconciliation panicked")
			sum.TenantFailures++
			sum.Panicked = true
		}
	}()

	store, err := r.cfg.Router.Open(ctx, t)
	if err != nil {
		logger.Error().Err(err).Msg("Open tenant store failed")
		sum.TenantFailures++
		return sum
	}
	pending, err := store.ListPending(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("List pending certificates failed")
		sum.TenantFailures++
		return sum
	}
	logger.Debug().Int("pending", len(pending)).Msg("Found unconfirmed certificates")

	// Bulk records share one transaction; look each up once per pass.
	seen := make(map[string]txLookup)
	for _, rec := range pending {
		if ctx.Err() != nil {
			sum.Pending++
			continue
		}
		sum.Checked++
		confirmed, err := r.reconcileRecord(ctx, store, rec, seen)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("id", rec.ID.String()).Str("tx", rec.TxHash).Msg("Certificate check failed")
			sum.Failures++
			sum.Pending++
		case confirmed:
			sum.Confirmed++
		default:
			sum.Pending++
		}
	}
	return sum
}

// reconcileRecord looks up the record's transaction and stores its block
// reference. It reports whether the record left the pending state.
func (r *Reconciler) reconcileRecord(ctx context.Context, store certstore.Store, rec *certstore.Record, seen map[string]txLookup) (bool, error) {
	res, ok := seen[rec.TxHash]
	if !ok {
		txHash, err := types.HexToHash(rec.TxHash)
		if err != nil {
			return false, fmt.Errorf("tx hash: %w", err)
		}
		res.info, res.err = r.lookup(ctx, txHash)
		seen[rec.TxHash] = res
	}

	info, err := res.info, res.err
	if errors.Is(err, chain.ErrTxNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.Confirmed() {
		return false, nil
	}

	err = store.ConfirmBlock(ctx, rec.ID, info.Block)
	if errors.Is(err, certstore.ErrAlreadyConfirmed) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	r.logger.Debug().Str("id", rec.ID.String()).Str("block", info.Block).Msg("Certificate confirmed")
	return true, nil
}

type txLookup struct {
	info *chain.TxInfo
	err  error
}

// lookup calls the chain under the in-flight limit.
func (r *Reconciler) lookup(ctx context.Context, txHash types.Hash) (*chain.TxInfo, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)
	return r.cfg.Chain.Transaction(ctx, txHash)
}

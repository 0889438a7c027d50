package anchor

import (
	"context"
	"errors"
	"fmt"

	"github.com/certledger/certanchor/internal/chain"
	"github.com/certledger/certanchor/internal/keys"
	klog "github.com/certledger/certanchor/internal/log"
	"github.com/certledger/certanchor/internal/tenant"
	"github.com/certledger/certanchor/pkg/tx"
	"github.com/certledger/certanchor/pkg/types"
)

type submission struct {
	txHash   types.Hash
	fee      uint64
	ttl      uint64
	inputs   []types.Outpoint
	children []types.Address
}

// submit builds, signs and submits a transaction carrying md while holding
// the wallet lock. A rejection for spent inputs triggers a rebuild, after
// RebuildDelay, from a fresh UTXO snapshot without the rejected inputs.
// An ambiguous submission is never retried: submit returns the submission
// together with an error wrapping chain.ErrSubmissionAmbiguous.
func (s *Service) submit(ctx context.Context, t tenant.Tenant, md tx.AuxData, children int) (*submission, error) {
	lockCtx := ctx
	if s.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.cfg.LockTimeout)
		defer cancel()
	}
	unlock, err := s.locker.Lock(lockCtx, s.address.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	logger := klog.WithTenant(s.logger, t.Name)
	spent := make(map[types.Outpoint]bool)
	for attempt := 0; ; attempt++ {
		signed, sub, err := s.build(ctx, md, children, spent)
		if err != nil {
			return nil, err
		}
		raw, err := signed.Bytes()
		if err != nil {
			return nil, err
		}

		id, err := s.chain.Submit(ctx, raw)
		switch {
		case err == nil:
			if id != sub.txHash {
				logger.Warn().
					Str("local", sub.txHash.String()).
					Str("provider", id.String()).
					Msg("Provider returned a different transaction id")
			}
			logger.Info().
				Str("tx", sub.txHash.String()).
				Uint64("fee", sub.fee).
				Int("children", children).
				Int("size", len(raw)).
				Msg("Anchor transaction submitted")
			return sub, nil

		case errors.Is(err, chain.ErrInputsSpent) && attempt < s.cfg.MaxRebuilds:
			logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Input already spent, rebuilding")
			s.metrics.Rebuilt()
			for _, in := range sub.inputs {
				spent[in] = true
			}
			if err := s.waitRebuild(ctx); err != nil {
				return nil, err
			}
			continue

		case errors.Is(err, chain.ErrInputsSpent):
			return nil, fmt.Errorf("%w: %w", ErrRebuildsExhausted, err)

		case errors.Is(err, chain.ErrSubmissionAmbiguous):
			logger.Error().Err(err).
				Str("tx", sub.txHash.String()).
				Uint64("ttl", sub.ttl).
				Msg("Submission outcome unknown, not retrying")
			return sub, fmt.Errorf("submit tx %s: %w", sub.txHash, err)

		default:
			return nil, fmt.Errorf("submit tx %s: %w", sub.txHash, err)
		}
	}
}

// waitRebuild gives the provider's UTXO view time to catch up with the
// transaction that spent our input.
func (s *Service) waitRebuild(ctx context.Context) error {
	if s.cfg.RebuildDelay <= 0 {
		return nil
	}
	select {
	case <-s.clock.TickAfter(s.cfg.RebuildDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// build opens the wallet, builds on a fresh UTXO snapshot minus the
// outpoints in spent, and signs. Key material is wiped before build returns.
func (s *Service) build(ctx context.Context, md tx.AuxData, children int, spent map[types.Outpoint]bool) (*tx.Transaction, *submission, error) {
	w, err := keys.OpenWallet(s.cfg.Mnemonic, s.cfg.Network)
	if err != nil {
		return nil, nil, err
	}
	defer w.Zero()

	var childAddrs []types.Address
	if children > 0 {
		childAddrs, err = w.ChildAddresses(children)
		if err != nil {
			return nil, nil, fmt.Errorf("derive child addresses: %w", err)
		}
	}

	utxos, err := s.chain.UTXOs(ctx, w.Address())
	if err != nil {
		return nil, nil, fmt.Errorf("fetch utxos: %w", err)
	}
	if len(spent) > 0 {
		live := make([]types.UTXO, 0, len(utxos))
		for _, u := range utxos {
			if !spent[u.Outpoint] {
				live = append(live, u)
			}
		}
		utxos = live
	}
	tip, err := s.chain.Tip(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch tip: %w", err)
	}

	plan, err := tx.BuildAnchor(tx.AnchorRequest{
		UTXOs:          utxos,
		TipSlot:        tip.Slot,
		ChangeAddress:  w.Address(),
		ChildAddresses: childAddrs,
		Metadata:       md,
		Params:         s.cfg.Params,
		TTLWindow:      s.cfg.TTLWindow,
	})
	if err != nil {
		return nil, nil, err
	}

	signed, err := tx.Sign(plan.Body, md, w.Signer())
	if err != nil {
		return nil, nil, err
	}
	return signed, &submission{
		txHash:   signed.ID(),
		fee:      plan.Body.Fee,
		ttl:      plan.Body.TTL,
		inputs:   plan.Body.Inputs,
		children: childAddrs,
	}, nil
}

package async_timelock

import (
	"context"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-timelock/pkg/data/timelock"
	"github.com/code-payments/code-timelock/pkg/database/query"
	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/metrics"
	timelock_program "github.com/code-payments/code-timelock/pkg/solana/timelock"
)

func (p *service) reconcileWorker(ctx context.Context, interval time.Duration) error {
	delay := interval

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			start := time.Now()

			tracedCtx, end := metrics.StartBackgroundTransaction(ctx, "async__timelock_indexer__reconcile")
			if err := p.reconcile(tracedCtx); err != nil && err != context.Canceled {
				p.log.WithError(err).Warn("failure reconciling timelock records")
			}
			end()

			delay = interval - time.Since(start)
		}
	}
}

// reconcile compares every Locked record against the committed ledger state.
func (p *service) reconcile(ctx context.Context) error {
	tracer := metrics.TraceMethodCall(ctx, "async_timelock", "reconcile")
	defer tracer.End()

	batchSize := p.conf.reconcileBatchSize.Get(ctx)

	var cursor query.Cursor
	for {
		records, err := p.records.GetAllByState(ctx, timelock.StateLocked, cursor, batchSize, query.Ascending)
		if err == timelock.ErrTimelockNotFound {
			return nil
		} else if err != nil {
			tracer.OnError(err)
			return err
		}

		for _, record := range records {
			if err := p.reconcileRecord(ctx, record); err != nil {
				p.log.WithError(err).WithField("timelock", record.Address).Warn("failure reconciling timelock record")
			}
		}

		cursor = query.ToCursor(records[len(records)-1].Id)
	}
}

func (p *service) reconcileRecord(ctx context.Context, record *timelock.Record) error {
	log := p.log.WithFields(logrus.Fields{
		"method":   "reconcileRecord",
		"timelock": record.Address,
	})

	address, err := base58.Decode(record.Address)
	if err != nil {
		return errors.Wrap(err, "invalid timelock address")
	}

	account, err := p.ledger.GetAccount(ctx, address)
	if err != nil && err != ledger.ErrAccountNotFound {
		return errors.Wrap(err, "error getting timelock account")
	}

	if err == nil && account.Exists() && account.IsOwnedBy(timelock_program.ProgramKey) {
		if account.Slot <= record.Slot {
			return nil
		}

		state, err := timelock_program.FromAccount(account)
		if err != nil {
			return errors.Wrap(err, "error decoding timelock account")
		}
		if err := record.UpdateFromAccount(state, account.Slot); err != nil {
			return err
		}

		log.Debug("updating record from ledger")
		return p.saveWithRetry(ctx, record)
	}

	// The account was closed without the update being observed. Its close slot
	// is unknown, but necessarily later than the recorded lock, and any later
	// relock commits at a later slot still.
	if err := record.MarkClosed(record.Slot + 1); err != nil {
		return err
	}

	log.Debug("closing record missing from ledger")
	if err := p.saveWithRetry(ctx, record); err != nil {
		return err
	}

	recordTimelockClosedEvent(ctx, record)
	return nil
}

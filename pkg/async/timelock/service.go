package async_timelock

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-timelock/pkg/async"
	"github.com/code-payments/code-timelock/pkg/cache"
	"github.com/code-payments/code-timelock/pkg/data/timelock"
	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/metrics"
	"github.com/code-payments/code-timelock/pkg/retry"
	"github.com/code-payments/code-timelock/pkg/retry/backoff"
	sync_util "github.com/code-payments/code-timelock/pkg/sync"
)

// Ledger is the view of the ledger the indexer consumes.
type Ledger interface {
	GetAccount(ctx context.Context, address ed25519.PublicKey) (*ledger.Account, error)
	Subscribe(ctx context.Context) <-chan []ledger.AccountUpdate
}

type service struct {
	log     *logrus.Entry
	conf    *conf
	ledger  Ledger
	records timelock.Store

	// Records last saved by this service, keyed by address
	cache cache.Cache[*timelock.Record]
}

// New returns the indexer service, which mirrors committed timelock accounts
// into the record store. It only reads from the ledger.
func New(ledger Ledger, records timelock.Store, configProvider ConfigProvider) async.Service {
	conf := configProvider()

	return &service{
		log:     logrus.StandardLogger().WithField("service", "timelock_indexer"),
		conf:    conf,
		ledger:  ledger,
		records: records,
		cache:   cache.New[*timelock.Record]("timelock_records", int(conf.recordCacheSize.Get(context.Background()))),
	}
}

// Start implements async.Service.Start
//
// interval is the cadence of the reconciliation sweep, which closes records
// whose account updates were missed while the service was down.
func (p *service) Start(ctx context.Context, interval time.Duration) error {
	// Subscribe before anything else, so that no commit between the sweep and
	// the subscription is missed.
	updates := p.ledger.Subscribe(ctx)

	workers := sync_util.NewStripedChannel[ledger.AccountUpdate](
		uint(p.conf.workerCount.Get(ctx)),
		uint(p.conf.workerQueueSize.Get(ctx)),
	)
	defer workers.Close()

	for i, channel := range workers.Receivers() {
		go func(id int, channel <-chan ledger.AccountUpdate) {
			p.worker(ctx, id, channel)
		}(i, channel)
	}

	go func() {
		err := p.reconcileWorker(ctx, interval)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("reconciliation loop terminated unexpectedly")
		}
	}()

	go func() {
		err := p.metricsGaugeWorker(ctx)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("timelock metrics gauge loop terminated unexpectedly")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-updates:
			if !ok {
				return ctx.Err()
			}

			for _, update := range batch {
				if !isTimelockUpdate(update) {
					continue
				}

				// Updates of the same address are handled in commit order by
				// the same worker.
				if err := workers.BlockingSend(ctx, update.Account.Address, update); err != nil {
					return err
				}
			}
		}
	}
}

func (p *service) worker(ctx context.Context, id int, updates <-chan ledger.AccountUpdate) {
	log := p.log.WithFields(logrus.Fields{
		"method": "worker",
		"worker": id,
	})

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}

			tracedCtx, end := metrics.StartBackgroundTransaction(ctx, "async__timelock_indexer__handle_update")
			if err := p.handleUpdate(tracedCtx, update); err != nil {
				log.WithError(err).WithField("timelock", update.Account.String()).Warn("failure handling timelock update")
			}
			end()
		}
	}
}

func (p *service) saveWithRetry(ctx context.Context, record *timelock.Record) error {
	_, err := retry.Retry(
		func() error {
			return p.records.Save(ctx, record)
		},
		retry.NonRetriableErrors(timelock.ErrStaleTimelockState, context.Canceled),
		retry.Limit(uint(p.conf.saveAttempts.Get(ctx))),
		retry.Cancellable(ctx),
		retry.Backoff(backoff.BinaryExponential(100*time.Millisecond), 2*time.Second),
	)
	if err == timelock.ErrStaleTimelockState {
		// A newer state is already stored
		p.cache.Remove(record.Address)
		return nil
	} else if err != nil {
		p.cache.Remove(record.Address)
		return err
	}

	p.cache.Insert(record.Address, record.Clone(), 1)
	return nil
}

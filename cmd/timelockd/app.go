package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/code-timelock/pkg/api"
	"github.com/code-payments/code-timelock/pkg/app"
	async_timelock "github.com/code-payments/code-timelock/pkg/async/timelock"
	"github.com/code-payments/code-timelock/pkg/data/timelock"
	timelock_memory "github.com/code-payments/code-timelock/pkg/data/timelock/memory"
	timelock_postgres "github.com/code-payments/code-timelock/pkg/data/timelock/postgres"
	pg "github.com/code-payments/code-timelock/pkg/database/postgres"
	"github.com/code-payments/code-timelock/pkg/etcd"
	"github.com/code-payments/code-timelock/pkg/ledger"
	ledger_memory "github.com/code-payments/code-timelock/pkg/ledger/memory"
	ledger_postgres "github.com/code-payments/code-timelock/pkg/ledger/postgres"
	"github.com/code-payments/code-timelock/pkg/lock"
	etcd_lock "github.com/code-payments/code-timelock/pkg/lock/etcd"
	memory_lock "github.com/code-payments/code-timelock/pkg/lock/memory"
	"github.com/code-payments/code-timelock/pkg/metrics"
	"github.com/code-payments/code-timelock/pkg/netutil"
	"github.com/code-payments/code-timelock/pkg/solana/memo"
	"github.com/code-payments/code-timelock/pkg/solana/system"
	timelock_program "github.com/code-payments/code-timelock/pkg/solana/timelock"
	"github.com/code-payments/code-timelock/pkg/solana/token"
)

const indexerLockName = "timelock-indexer"

type timelockApp struct {
	log    *logrus.Entry
	nodeID string

	db          *sqlx.DB
	etcdClient  *v3.Client
	etcdLocks   *etcd_lock.LockManager
	registry    *etcd.Registry
	bank        *ledger.Bank
	records     timelock.Store
	indexerLock lock.DistributedLock
	server      *http.Server

	ctx        context.Context
	cancel     context.CancelFunc
	shutdownCh chan struct{}
	stopOnce   sync.Once
}

// Init implements app.App.Init
func (a *timelockApp) Init(raw app.Config, metricsProvider *newrelic.Application) error {
	a.nodeID = uuid.NewString()
	a.log = logrus.StandardLogger().WithFields(logrus.Fields{
		"type": "timelockd",
		"node": a.nodeID,
	})
	a.shutdownCh = make(chan struct{})

	conf, err := decodeConfig(raw)
	if err != nil {
		return err
	}

	a.ctx, a.cancel = context.WithCancel(metrics.WithNewRelicApplication(context.Background(), metricsProvider))

	accounts, records, err := a.initStores(conf)
	if err != nil {
		a.Stop()
		return err
	}
	a.records = records

	var locks lock.Manager = memory_lock.NewLockManager()
	if conf.LockBackend == lockBackendEtcd {
		if err := a.initEtcd(conf); err != nil {
			a.Stop()
			return err
		}
		locks = a.etcdLocks
	}

	// Banks in the same process share in-process stripes, so cross process
	// locks are only needed for a shared store.
	var bankLocks lock.Manager
	if conf.LockBackend == lockBackendEtcd {
		bankLocks = a.etcdLocks
	}

	a.bank = ledger.NewBank(
		accounts,
		bankLocks,
		ledger.SystemClock(),
		ledger.WithEnvConfigs(),
		system.NewProcessor(),
		token.NewProcessor(),
		token.NewAssociatedProcessor(),
		memo.NewProcessor(),
		timelock_program.NewProcessor(),
	)

	for _, airdrop := range conf.Airdrops {
		address, _ := base58.Decode(airdrop.Address)
		if _, err := a.bank.Airdrop(a.ctx, address, airdrop.Lamports); err != nil {
			a.Stop()
			return errors.Wrapf(err, "failed to airdrop to %s", airdrop.Address)
		}
	}

	a.indexerLock, err = locks.Create(a.ctx, indexerLockName)
	if err != nil {
		a.Stop()
		return errors.Wrap(err, "failed to create indexer lock")
	}

	listenAddress, err := netutil.ResolveListenAddress(conf.ApiListenAddress)
	if err != nil {
		a.Stop()
		return err
	}

	a.server = &http.Server{
		Addr:              listenAddress,
		Handler:           api.NewServer(a.bank, a.records).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if conf.LockBackend == lockBackendEtcd {
		advertised, err := netutil.AdvertiseAddress(listenAddress)
		if err != nil {
			a.Stop()
			return err
		}

		a.registry, err = etcd.NewRegistry(a.etcdClient, conf.EtcdRootKey+"/nodes", &etcd.Node{
			ID:         a.nodeID,
			APIAddress: advertised,
			StartedAt:  time.Now().UTC(),
		}, conf.EtcdNodeTTL)
		if err != nil {
			a.Stop()
			return errors.Wrap(err, "failed to register node")
		}
	}

	indexer := async_timelock.New(a.bank, a.records, async_timelock.WithEnvConfigs())

	group, ctx := errgroup.WithContext(a.ctx)
	group.Go(func() error {
		a.log.WithField("address", listenAddress).Info("serving api")
		if err := a.server.ListenAndServe(); err != http.ErrServerClosed {
			return errors.Wrap(err, "api server stopped")
		}
		return nil
	})
	group.Go(func() error {
		return a.runIndexer(ctx, indexer, conf.ReconcileInterval)
	})

	go func() {
		if err := group.Wait(); err != nil && err != context.Canceled {
			a.log.WithError(err).Error("timelockd stopped")
		}
		close(a.shutdownCh)
	}()

	return nil
}

func (a *timelockApp) initStores(conf *config) (ledger.Store, timelock.Store, error) {
	if !conf.usePostgres() {
		a.log.Warn("no postgres configured, state is kept in memory")
		return ledger_memory.New(), timelock_memory.New(), nil
	}

	db, err := pg.New(conf.postgres())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to postgres")
	}
	a.db = db

	if conf.ApplySchema {
		for _, schema := range []string{ledger_postgres.Schema, timelock_postgres.Schema} {
			if _, err := db.Exec(schema); err != nil {
				return nil, nil, errors.Wrap(err, "failed to apply schema")
			}
		}
	}

	return ledger_postgres.New(db.DB), timelock_postgres.New(db.DB), nil
}

func (a *timelockApp) initEtcd(conf *config) error {
	client, err := v3.New(v3.Config{
		Endpoints:   conf.EtcdEndpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create etcd client")
	}
	a.etcdClient = client

	a.etcdLocks, err = etcd_lock.NewLockManager(client, conf.EtcdRootKey+"/locks", conf.EtcdLockTTL, a.nodeID)
	if err != nil {
		return errors.Wrap(err, "failed to create etcd lock manager")
	}
	return nil
}

// runIndexer runs the indexer while this node holds the indexer lock, so only
// one node writes records at a time.
func (a *timelockApp) runIndexer(ctx context.Context, indexer interface {
	Start(context.Context, time.Duration) error
}, interval time.Duration) error {
	for {
		a.log.Info("waiting for indexer lock")

		lostCh, err := a.indexerLock.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to acquire indexer lock")
		}

		a.log.Info("running indexer")

		runCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-lostCh:
			case <-runCtx.Done():
			}
			cancel()
		}()

		err = indexer.Start(runCtx, interval)
		cancel()
		_ = a.indexerLock.Unlock(context.Background())

		if ctx.Err() != nil {
			return nil
		}
		a.log.WithError(err).Warn("indexer stopped, lock lost")
	}
}

// ShutdownChan implements app.App.ShutdownChan
func (a *timelockApp) ShutdownChan() <-chan struct{} {
	return a.shutdownCh
}

// Stop implements app.App.Stop
func (a *timelockApp) Stop() {
	a.stopOnce.Do(func() {
		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := a.server.Shutdown(ctx); err != nil {
				a.log.WithError(err).Warn("failed to shut down api server")
			}
			cancel()
		}

		if a.cancel != nil {
			a.cancel()
		}

		if a.registry != nil {
			a.registry.Close()
		}
		if a.etcdLocks != nil {
			a.etcdLocks.Close()
		}
		if a.etcdClient != nil {
			if err := a.etcdClient.Close(); err != nil {
				a.log.WithError(err).Warn("failed to close etcd client")
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.log.WithError(err).Warn("failed to close postgres")
			}
		}
	})
}

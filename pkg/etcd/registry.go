// Package etcd advertises timelockd nodes sharing a ledger, and tracks which
// of them are alive.
//
// Each node keeps its entry under the registry prefix attached to a lease, so
// the entry disappears when the process crashes or loses etcd for longer than
// the TTL. The entry is written back once etcd is reachable again.
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/code-payments/code-timelock/pkg/retry"
	"github.com/code-payments/code-timelock/pkg/retry/backoff"
)

var ErrRegistryClosed = errors.New("registry closed")

// Node is a process serving the ledger.
type Node struct {
	ID         string    `json:"id"`
	APIAddress string    `json:"api_address"`
	StartedAt  time.Time `json:"started_at"`
}

type Registry struct {
	log    *logrus.Entry
	client *v3.Client
	prefix string
	ttl    int

	self *Node
	key  string
	val  string

	// Signalled when the node's own entry was deleted by someone else
	recreateCh chan struct{}

	peersMu sync.RWMutex
	peers   map[string]*Node
	changed *sync.Cond

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRegistry registers self under prefix and starts watching the other nodes
// registered there.
func NewRegistry(client *v3.Client, prefix string, self *Node, ttl time.Duration) (*Registry, error) {
	ttlSeconds := ttl.Truncate(time.Second).Seconds()
	if ttlSeconds < 1 || ttlSeconds > 60 {
		return nil, errors.Errorf("invalid ttl %v: must be [1s, 60s]", ttl)
	}
	if len(self.ID) == 0 {
		return nil, errors.New("node id is required")
	}

	val, err := json.Marshal(self)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal node")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type":   "etcd/registry",
			"prefix": prefix,
			"node":   self.ID,
		}),
		client: client,
		prefix: prefix,
		ttl:    int(ttlSeconds),

		self: self,
		key:  path.Join(prefix, self.ID),
		val:  string(val),

		recreateCh: make(chan struct{}, 1),

		peers: make(map[string]*Node),

		ctx:    ctx,
		cancel: cancel,
	}
	r.changed = newCond(r)

	r.wg.Add(3)
	go r.keepAlive()
	go r.watchSelf()
	go r.watchPeers()

	return r, nil
}

// Self returns the node advertised by this registry.
func (r *Registry) Self() *Node {
	cloned := *r.self
	return &cloned
}

// Peers returns every registered node, including this one once its entry is
// visible, ordered by ID.
func (r *Registry) Peers() []*Node {
	r.peersMu.RLock()
	defer r.peersMu.RUnlock()

	return r.sortedPeers()
}

// WaitForNode blocks until the node with the provided ID is registered, or
// unregistered when present is false.
func (r *Registry) WaitForNode(ctx context.Context, id string, present bool) error {
	stop := context.AfterFunc(ctx, func() {
		r.peersMu.Lock()
		r.changed.Broadcast()
		r.peersMu.Unlock()
	})
	defer stop()

	r.peersMu.RLock()
	defer r.peersMu.RUnlock()

	for {
		if _, ok := r.peers[id]; ok == present {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.ctx.Done():
			return ErrRegistryClosed
		default:
		}

		r.changed.Wait()
	}
}

// Close unregisters the node and stops watching. It is idempotent.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		r.cancel()

		r.peersMu.Lock()
		r.changed.Broadcast()
		r.peersMu.Unlock()

		r.wg.Wait()
	})
}

// keepAlive writes the node's entry with a session lease, and rewrites it
// whenever the session is lost or the entry is removed.
func (r *Registry) keepAlive() {
	defer r.wg.Done()

	_, _ = retry.Retry(
		func() error {
			session, err := concurrency.NewSession(r.client, concurrency.WithTTL(r.ttl))
			if err != nil {
				return err
			}
			defer func() {
				// Closing revokes the lease, which removes the entry
				if err := session.Close(); err != nil {
					r.log.WithError(err).Warn("failed to close session")
				}
			}()

			for {
				ctx, cancel := context.WithTimeout(r.ctx, time.Duration(r.ttl)*time.Second)
				_, err := r.client.Put(ctx, r.key, r.val, v3.WithLease(session.Lease()))
				cancel()
				if err != nil {
					return fmt.Errorf("failed to write key %q: %w", r.key, err)
				}

				select {
				case <-r.ctx.Done():
					return r.ctx.Err()
				case <-session.Done():
					return errors.New("session closed")
				case <-r.recreateCh:
				}
			}
		},
		r.untilClosed("registration loop"),
		retry.BackoffWithJitter(backoff.Constant(time.Second), time.Second, 0.1),
	)
}

// watchSelf detects the node's entry being deleted while the session is
// still alive.
func (r *Registry) watchSelf() {
	defer r.wg.Done()

	_, _ = retry.Retry(
		func() error {
			for w := range r.client.Watch(r.ctx, r.key) {
				if err := w.Err(); err != nil {
					return err
				}

				for _, e := range w.Events {
					if e.Type != v3.EventTypeDelete {
						continue
					}

					select {
					case r.recreateCh <- struct{}{}:
					default:
					}
				}
			}
			return r.ctx.Err()
		},
		r.untilClosed("self watch loop"),
		retry.BackoffWithJitter(backoff.Constant(time.Second), time.Second, 0.1),
	)
}

// watchPeers mirrors every entry under the prefix into the peer set.
func (r *Registry) watchPeers() {
	defer r.wg.Done()

	prefix := r.prefix + "/"

	_, _ = retry.Retry(
		func() error {
			get, err := r.client.Get(r.ctx, prefix, v3.WithPrefix())
			if err != nil {
				return err
			}

			peers := make(map[string]*Node)
			for _, kv := range get.Kvs {
				node, err := decodeNode(kv.Value)
				if err != nil {
					r.log.WithError(err).WithField("key", string(kv.Key)).Warn("invalid node entry, dropping")
					continue
				}
				peers[string(kv.Key)] = node
			}
			r.setPeers(peers)

			watchCh := r.client.Watch(
				r.ctx,
				prefix,
				v3.WithPrefix(),
				v3.WithRev(get.Header.Revision+1),
			)
			for w := range watchCh {
				if err := w.Err(); err != nil {
					return err
				}

				for _, e := range w.Events {
					switch e.Type {
					case v3.EventTypePut:
						node, err := decodeNode(e.Kv.Value)
						if err != nil {
							r.log.WithError(err).WithField("key", string(e.Kv.Key)).Warn("invalid node entry, dropping")
							continue
						}
						peers[string(e.Kv.Key)] = node
					case v3.EventTypeDelete:
						delete(peers, string(e.Kv.Key))
					}
				}
				r.setPeers(peers)
			}

			return r.ctx.Err()
		},
		r.untilClosed("peer watch loop"),
		retry.BackoffWithJitter(backoff.Constant(time.Second), 2*time.Second, 0.1),
	)
}

func newCond(r *Registry) *sync.Cond {
	return sync.NewCond(r.peersMu.RLocker())
}

func (r *Registry) untilClosed(loop string) retry.Strategy {
	return func(attempts uint, err error) bool {
		if r.ctx.Err() != nil {
			return false
		}
		r.log.WithError(err).Warnf("failure in %s", loop)
		return true
	}
}

func (r *Registry) setPeers(byKey map[string]*Node) {
	byID := make(map[string]*Node, len(byKey))
	for _, node := range byKey {
		byID[node.ID] = node
	}

	r.peersMu.Lock()
	r.peers = byID
	r.changed.Broadcast()
	r.peersMu.Unlock()

	r.log.WithField("peers", len(byID)).Debug("peer set updated")
}

func (r *Registry) sortedPeers() []*Node {
	res := make([]*Node, 0, len(r.peers))
	for _, node := range r.peers {
		cloned := *node
		res = append(res, &cloned)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res
}

func decodeNode(val []byte) (*Node, error) {
	var node Node
	if err := json.Unmarshal(val, &node); err != nil {
		return nil, err
	}
	if len(node.ID) == 0 {
		return nil, errors.New("node id is missing")
	}
	return &node, nil
}

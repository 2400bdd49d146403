package memory

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/code-payments/code-timelock/pkg/data/timelock"
	"github.com/code-payments/code-timelock/pkg/database/query"
)

type store struct {
	mu sync.Mutex

	// byId orders records by insertion for paging, mirroring the postgres
	// serial id.
	byId      *treemap.Map
	byAddress map[string]*timelock.Record
	nextId    uint64
}

// New returns a new in memory timelock.Store
func New() timelock.Store {
	s := &store{}
	s.reset()
	return s
}

func (s *store) Save(_ context.Context, record *timelock.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byAddress[record.Address]
	switch {
	case !ok:
		s.nextId++
		stored = &timelock.Record{}
		record.Id = s.nextId
		s.byAddress[record.Address] = stored
		s.byId.Put(record.Id, stored)
	case record.Slot <= stored.Slot:
		return timelock.ErrStaleTimelockState
	default:
		record.Id = stored.Id
	}

	record.LastUpdatedAt = time.Now()
	record.CopyTo(stored)
	return nil
}

func (s *store) GetByAddress(_ context.Context, address string) (*timelock.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byAddress[address]
	if !ok {
		return nil, timelock.ErrTimelockNotFound
	}
	return stored.Clone(), nil
}

// GetByReceiver returns the earliest saved record locked for the receiver.
func (s *store) GetByReceiver(_ context.Context, receiver string) (*timelock.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *timelock.Record
	s.walk(query.Ascending, 0, func(r *timelock.Record) bool {
		if r.Receiver == receiver {
			found = r.Clone()
			return false
		}
		return true
	})

	if found == nil {
		return nil, timelock.ErrTimelockNotFound
	}
	return found, nil
}

func (s *store) GetAllByState(_ context.Context, state timelock.State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*timelock.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var after uint64
	if len(cursor) > 0 {
		after = cursor.ToUint64()
	}

	var res []*timelock.Record
	s.walk(direction, after, func(r *timelock.Record) bool {
		if r.State == state {
			res = append(res, r.Clone())
		}
		return limit == 0 || uint64(len(res)) < limit
	})

	if len(res) == 0 {
		return nil, timelock.ErrTimelockNotFound
	}
	return res, nil
}

func (s *store) GetCountByState(_ context.Context, state timelock.State) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count uint64
	for _, r := range s.byAddress {
		if r.State == state {
			count++
		}
	}
	return count, nil
}

// walk visits records strictly past the cursor id in the given direction until
// fn returns false. A zero cursor visits every record.
func (s *store) walk(direction query.Ordering, cursor uint64, fn func(*timelock.Record) bool) {
	it := s.byId.Iterator()

	if direction == query.Descending {
		for it.End(); it.Prev(); {
			id := it.Key().(uint64)
			if cursor > 0 && id >= cursor {
				continue
			}
			if !fn(it.Value().(*timelock.Record)) {
				return
			}
		}
		return
	}

	for it.Next() {
		if it.Key().(uint64) <= cursor {
			continue
		}
		if !fn(it.Value().(*timelock.Record)) {
			return
		}
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byId = treemap.NewWith(utils.UInt64Comparator)
	s.byAddress = make(map[string]*timelock.Record)
	s.nextId = 0
}

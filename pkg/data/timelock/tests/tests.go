package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-timelock/pkg/data/timelock"
	"github.com/code-payments/code-timelock/pkg/database/query"
)

// RunTests exercises a timelock.Store implementation. The store is reset with
// teardown after every case.
func RunTests(t *testing.T, s timelock.Store, teardown func()) {
	for name, tc := range map[string]func(t *testing.T, s timelock.Store){
		"save and get":    testSaveAndGet,
		"stale slot":      testStaleSlot,
		"relock":          testRelock,
		"paging":          testPaging,
		"counts by state": testCountByState,
		"invalid records": testInvalidRecords,
	} {
		t.Run(name, func(t *testing.T) {
			defer teardown()
			tc(t, s)
		})
	}
}

func testSaveAndGet(t *testing.T, s timelock.Store) {
	ctx := context.Background()
	before := time.Now()

	record := newRecord("a", timelock.StateLocked, 100)

	_, err := s.GetByAddress(ctx, record.Address)
	assert.Equal(t, timelock.ErrTimelockNotFound, err)
	_, err = s.GetByReceiver(ctx, record.Receiver)
	assert.Equal(t, timelock.ErrTimelockNotFound, err)

	saved := record.Clone()
	require.NoError(t, s.Save(ctx, saved))
	assert.NotZero(t, saved.Id)
	assert.True(t, saved.LastUpdatedAt.After(before))

	byAddress, err := s.GetByAddress(ctx, record.Address)
	require.NoError(t, err)
	requireSameRecord(t, record, byAddress)
	assert.Equal(t, saved.Id, byAddress.Id)

	byReceiver, err := s.GetByReceiver(ctx, record.Receiver)
	require.NoError(t, err)
	assert.Equal(t, byAddress, byReceiver)

	// Records returned by the store are copies
	byAddress.Amount++
	again, err := s.GetByAddress(ctx, record.Address)
	require.NoError(t, err)
	assert.Equal(t, record.Amount, again.Amount)
}

func testStaleSlot(t *testing.T, s timelock.Store) {
	ctx := context.Background()

	locked := newRecord("b", timelock.StateLocked, 50)
	require.NoError(t, s.Save(ctx, locked.Clone()))

	stored, err := s.GetByAddress(ctx, locked.Address)
	require.NoError(t, err)

	for _, slot := range []uint64{49, 50} {
		closed := locked.Clone()
		closed.State = timelock.StateClosed
		closed.Slot = slot

		time.Sleep(time.Millisecond)
		assert.Equal(t, timelock.ErrStaleTimelockState, s.Save(ctx, closed), "slot %d", slot)
		assert.True(t, closed.LastUpdatedAt.IsZero())
	}

	unchanged, err := s.GetByAddress(ctx, locked.Address)
	require.NoError(t, err)
	requireSameRecord(t, locked, unchanged)
	assert.Equal(t, stored.LastUpdatedAt.UnixMilli(), unchanged.LastUpdatedAt.UnixMilli())

	closed := locked.Clone()
	closed.State = timelock.StateClosed
	closed.Slot = 51

	time.Sleep(time.Millisecond)
	require.NoError(t, s.Save(ctx, closed))
	assert.Equal(t, stored.Id, closed.Id)
	assert.True(t, closed.LastUpdatedAt.After(stored.LastUpdatedAt))

	actual, err := s.GetByAddress(ctx, locked.Address)
	require.NoError(t, err)
	requireSameRecord(t, closed, actual)
	assert.True(t, actual.IsClosed())
}

func testRelock(t *testing.T, s timelock.Store) {
	ctx := context.Background()

	record := newRecord("c", timelock.StateLocked, 10)
	require.NoError(t, s.Save(ctx, record))
	id := record.Id

	record.State = timelock.StateClosed
	record.Slot = 20
	require.NoError(t, s.Save(ctx, record))

	// A later lock for the same receiver lands on the same address and
	// replaces the lock details.
	relocked := newRecord("c", timelock.StateLocked, 30)
	relocked.Initializer = "initializer-relock"
	relocked.Custody = "custody-relock"
	relocked.UnlockAt = 2_000_000_000
	relocked.Amount = 42
	require.NoError(t, s.Save(ctx, relocked))
	assert.Equal(t, id, relocked.Id)

	actual, err := s.GetByReceiver(ctx, relocked.Receiver)
	require.NoError(t, err)
	requireSameRecord(t, relocked, actual)
	assert.Equal(t, id, actual.Id)
}

func testPaging(t *testing.T, s timelock.Store) {
	ctx := context.Background()

	var locked []*timelock.Record
	for i := 0; i < 45; i++ {
		state := timelock.StateLocked
		if i%4 == 3 {
			state = timelock.StateClosed
		}

		record := newRecord(fmt.Sprintf("page-%d", i), state, uint64(i+1))
		require.NoError(t, s.Save(ctx, record))
		if state == timelock.StateLocked {
			locked = append(locked, record)
		}
	}

	_, err := s.GetAllByState(ctx, timelock.StateUnknown, query.EmptyCursor, 10, query.Ascending)
	assert.Equal(t, timelock.ErrTimelockNotFound, err)

	all, err := s.GetAllByState(ctx, timelock.StateLocked, query.EmptyCursor, 0, query.Ascending)
	require.NoError(t, err)
	assert.Len(t, all, len(locked))

	for _, direction := range []query.Ordering{query.Ascending, query.Descending} {
		var pages [][]*timelock.Record
		cursor := query.EmptyCursor
		for {
			page, err := s.GetAllByState(ctx, timelock.StateLocked, cursor, 10, direction)
			if err == timelock.ErrTimelockNotFound {
				break
			}
			require.NoError(t, err)
			require.NotEmpty(t, page)
			require.LessOrEqual(t, len(page), 10)

			pages = append(pages, page)
			cursor = query.ToCursor(page[len(page)-1].Id)
		}

		var flattened []*timelock.Record
		for _, page := range pages {
			flattened = append(flattened, page...)
		}
		require.Len(t, flattened, len(locked), direction.String())

		for i, actual := range flattened {
			expected := locked[i]
			if direction == query.Descending {
				expected = locked[len(locked)-1-i]
			}
			requireSameRecord(t, expected, actual)
		}
	}
}

func testCountByState(t *testing.T, s timelock.Store) {
	ctx := context.Background()

	counts := map[timelock.State]int{
		timelock.StateUnknown: 1,
		timelock.StateLocked:  3,
		timelock.StateClosed:  2,
	}
	for state, n := range counts {
		for i := 0; i < n; i++ {
			require.NoError(t, s.Save(ctx, newRecord(fmt.Sprintf("%s-%d", state, i), state, 1)))
		}
	}

	for state, n := range counts {
		count, err := s.GetCountByState(ctx, state)
		require.NoError(t, err)
		assert.EqualValues(t, n, count, state.String())
	}
}

func testInvalidRecords(t *testing.T, s timelock.Store) {
	ctx := context.Background()

	missingCustody := newRecord("d", timelock.StateLocked, 1)
	missingCustody.Custody = ""
	assert.Error(t, s.Save(ctx, missingCustody))

	_, err := s.GetByAddress(ctx, missingCustody.Address)
	assert.Equal(t, timelock.ErrTimelockNotFound, err)
}

func newRecord(suffix string, state timelock.State, slot uint64) *timelock.Record {
	return &timelock.Record{
		Address:     "timelock-" + suffix,
		Bump:        254,
		Receiver:    "receiver-" + suffix,
		Initializer: "initializer-" + suffix,
		Destination: "destination-" + suffix,
		Custody:     "custody-" + suffix,
		UnlockAt:    1_700_000_000,
		Amount:      1000,
		State:       state,
		Slot:        slot,
	}
}

// requireSameRecord compares everything but the store-assigned fields.
func requireSameRecord(t *testing.T, expected, actual *timelock.Record) {
	e, a := expected.Clone(), actual.Clone()
	e.Id, a.Id = 0, 0
	e.LastUpdatedAt, a.LastUpdatedAt = time.Time{}, time.Time{}
	require.Equal(t, e, a)
}

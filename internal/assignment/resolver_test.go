package assignment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arknettransit/dutyplan/internal/assignment"
	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/timespan"
	"github.com/arknettransit/dutyplan/internal/validation"
)

var dutyDate = calendar.Date(2025, time.September, 2)

func span(start, end string) timespan.Interval {
	return timespan.Interval{Start: timespan.MustParseClock(start), End: timespan.MustParseClock(end)}
}

func request(res assignment.Resource, blockID string) assignment.Request {
	return assignment.Request{Resource: res, DutyDate: dutyDate, BlockID: blockID}
}

func TestResolver_BackToBackAndOverlap(t *testing.T) {
	ctx := context.Background()
	store := assignment.NewInMemoryRepository()
	r := assignment.NewResolver(assignment.ResolverConfig{})
	v := assignment.Vehicle("V")

	first, err := r.Assign(ctx, store, request(v, "B1"), span("08:00", "12:00"))
	require.NoError(t, err)
	assert.Equal(t, dutyDate, first.DutyDate)

	_, err = r.Assign(ctx, store, request(v, "B2"), span("11:00", "15:00"))
	require.ErrorIs(t, err, validation.ErrDoubleBooking)
	var conflict *assignment.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID, conflict.Existing.ID)
	assert.Equal(t, "B1", conflict.Existing.BlockID)

	viol := conflict.Violation()
	assert.Equal(t, validation.KindDoubleBooking, viol.Kind)
	require.NotNil(t, viol.Related)
	assert.Equal(t, first.ID, viol.Related.ID)

	_, err = r.Assign(ctx, store, request(v, "B3"), span("12:00", "16:00"))
	require.NoError(t, err, "back-to-back duties are allowed")

	all, err := store.FetchAssignments(ctx, v, dutyDate)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "B1", all[0].BlockID)
	assert.Equal(t, "B3", all[1].BlockID)
}

func TestResolver_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := assignment.NewInMemoryRepository()
	r := assignment.NewResolver(assignment.ResolverConfig{})
	s := span("08:00", "12:00")

	_, err := r.Assign(ctx, store, request(assignment.Vehicle("V"), "B1"), s)
	require.NoError(t, err)

	_, err = r.Assign(ctx, store, request(assignment.Driver("V"), "B1"), s)
	assert.NoError(t, err, "driver and vehicle with the same id are different resources")

	_, err = r.Assign(ctx, store, request(assignment.Vehicle("W"), "B1"), s)
	assert.NoError(t, err)

	next := request(assignment.Vehicle("V"), "B2")
	next.DutyDate = dutyDate.AddDate(0, 0, 1)
	_, err = r.Assign(ctx, store, next, s)
	assert.NoError(t, err, "a different duty date does not conflict")
}

func TestResolver_DutyDateTruncated(t *testing.T) {
	ctx := context.Background()
	store := assignment.NewInMemoryRepository()
	r := assignment.NewResolver(assignment.ResolverConfig{})
	v := assignment.Vehicle("V")

	morning := request(v, "B1")
	morning.DutyDate = dutyDate.Add(7 * time.Hour)
	_, err := r.Assign(ctx, store, morning, span("08:00", "12:00"))
	require.NoError(t, err)

	evening := request(v, "B2")
	evening.DutyDate = dutyDate.Add(19 * time.Hour)
	_, err = r.Assign(ctx, store, evening, span("09:00", "10:00"))
	assert.ErrorIs(t, err, validation.ErrDoubleBooking)
}

func TestResolver_InvalidInput(t *testing.T) {
	ctx := context.Background()
	store := assignment.NewInMemoryRepository()
	r := assignment.NewResolver(assignment.ResolverConfig{})

	_, err := r.Assign(ctx, store, request(assignment.Vehicle("V"), "B1"), span("12:00", "12:00"))
	assert.ErrorIs(t, err, validation.ErrInvalidRange)

	_, err = r.Assign(ctx, store, request(assignment.Resource{Kind: "tram", ID: "T"}, "B1"), span("08:00", "09:00"))
	assert.ErrorIs(t, err, assignment.ErrInvalidResource)

	assert.Zero(t, store.Commits())
}

func TestCheck_EarliestCollisionWins(t *testing.T) {
	existing := []assignment.Assignment{
		{ID: "c", StartTime: timespan.MustParseClock("10:00"), EndTime: timespan.MustParseClock("11:00")},
		{ID: "b", StartTime: timespan.MustParseClock("09:00"), EndTime: timespan.MustParseClock("10:00")},
		{ID: "a", StartTime: timespan.MustParseClock("09:00"), EndTime: timespan.MustParseClock("09:30")},
		{ID: "z", StartTime: timespan.MustParseClock("06:00"), EndTime: timespan.MustParseClock("08:00")},
	}

	hit, ok := assignment.Check(span("08:00", "12:00"), existing)
	require.True(t, ok)
	assert.Equal(t, "a", hit.ID)

	_, ok = assignment.Check(span("11:00", "13:00"), existing)
	assert.False(t, ok)

	_, ok = assignment.Check(span("08:00", "09:00"), nil)
	assert.False(t, ok)
}

func TestResolver_ConcurrentAttempts(t *testing.T) {
	const n = 32
	ctx := context.Background()
	store := assignment.NewInMemoryRepository()
	r := assignment.NewResolver(assignment.ResolverConfig{})
	v := assignment.Vehicle("V")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			s := timespan.Interval{
				Start: timespan.MustParseClock("08:00") + timespan.Minutes(i),
				End:   timespan.MustParseClock("12:00"),
			}
			_, err := r.Assign(ctx, store, request(v, fmt.Sprintf("B%02d", i)), s)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, validation.ErrDoubleBooking):
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, store.Commits())
	assert.Zero(t, r.ActiveKeys())
}

// blockingStore parks the first FetchAssignments call until released.
type blockingStore struct {
	*assignment.InMemoryRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		InMemoryRepository: assignment.NewInMemoryRepository(),
		entered:            make(chan struct{}, 1),
		release:            make(chan struct{}),
	}
}

func (s *blockingStore) FetchAssignments(ctx context.Context, res assignment.Resource, date time.Time) ([]assignment.Assignment, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.InMemoryRepository.FetchAssignments(ctx, res, date)
}

func TestResolver_AbandonWhileWaiting(t *testing.T) {
	store := newBlockingStore()
	r := assignment.NewResolver(assignment.ResolverConfig{})
	v := assignment.Vehicle("V")

	holderDone := make(chan error, 1)
	go func() {
		_, err := r.Assign(context.Background(), store, request(v, "B1"), span("08:00", "12:00"))
		holderDone <- err
	}()
	<-store.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Assign(ctx, store, request(v, "B2"), span("13:00", "14:00"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := r.Assign(context.Background(), store, request(assignment.Vehicle("W"), "B1"), span("08:00", "12:00"))
	require.NoError(t, err, "other keys are not blocked")
	assert.Equal(t, "W", other.ResourceID)

	close(store.release)
	require.NoError(t, <-holderDone)

	_, err = r.Assign(context.Background(), store, request(v, "B2"), span("13:00", "14:00"))
	require.NoError(t, err)
	assert.Zero(t, r.ActiveKeys())
}

// cancelingStore cancels the caller's context during the fetch.
type cancelingStore struct {
	*assignment.InMemoryRepository
	cancel context.CancelFunc
}

func (s *cancelingStore) FetchAssignments(ctx context.Context, res assignment.Resource, date time.Time) ([]assignment.Assignment, error) {
	s.cancel()
	return s.InMemoryRepository.FetchAssignments(ctx, res, date)
}

func TestResolver_AbandonWhileHolding(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &cancelingStore{InMemoryRepository: assignment.NewInMemoryRepository(), cancel: cancel}
	r := assignment.NewResolver(assignment.ResolverConfig{})

	_, err := r.Assign(ctx, store, request(assignment.Vehicle("V"), "B1"), span("08:00", "12:00"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Commits(), "nothing is committed after abandonment")
	assert.Zero(t, r.ActiveKeys(), "lock is released")

	_, err = r.Assign(context.Background(), store.InMemoryRepository, request(assignment.Vehicle("V"), "B1"), span("08:00", "12:00"))
	assert.NoError(t, err)
}

func TestResolver_LockWaitHook(t *testing.T) {
	var waits int
	r := assignment.NewResolver(assignment.ResolverConfig{
		OnLockWait: func(context.Context, time.Duration) { waits++ },
	})
	store := assignment.NewInMemoryRepository()

	_, err := r.Assign(context.Background(), store, request(assignment.Vehicle("V"), "B1"), span("08:00", "12:00"))
	require.NoError(t, err)
	_, err = r.Assign(context.Background(), store, request(assignment.Vehicle("V"), "B2"), span("09:00", "10:00"))
	require.Error(t, err)

	assert.Equal(t, 2, waits)
}

func TestResolver_Release(t *testing.T) {
	ctx := context.Background()
	store := assignment.NewInMemoryRepository()
	r := assignment.NewResolver(assignment.ResolverConfig{})
	v := assignment.Vehicle("V")

	a, err := r.Assign(ctx, store, request(v, "B1"), span("08:00", "12:00"))
	require.NoError(t, err)

	require.NoError(t, r.Release(ctx, store, *a))
	assert.ErrorIs(t, r.Release(ctx, store, *a), assignment.ErrAssignmentNotFound)

	_, err = r.Assign(ctx, store, request(v, "B2"), span("09:00", "10:00"))
	assert.NoError(t, err)
}

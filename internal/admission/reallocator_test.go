package admission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReallocator(t *testing.T) (*Reallocator, *Controller, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	ctrl := NewController(repo, nopLocker{}, nil, time.UTC, zap.NewNop())
	eng := NewReallocator(repo, ctrl, nopLocker{}, zap.NewNop())
	return eng, ctrl, repo
}

func TestReallocatePriorityFirst(t *testing.T) {
	ctx := context.Background()
	eng, ctrl, repo := newTestReallocator(t)
	p := newTestProvider(t, ctrl, "General Medicine",
		SlotTemplate{Start: 540, End: 600, MaxCapacity: 3})

	// admission order: walkin, priority, emergency
	var numbers []string
	for _, ch := range []Channel{ChannelWalkin, ChannelPriority, ChannelEmergency} {
		res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ch))
		require.NoError(t, err)
		require.True(t, res.Admitted, "channel %s", ch)
		numbers = append(numbers, res.Admission.Token.Number)
	}

	stats, err := eng.Reallocate(ctx, p.ID, testDate)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)

	// replay runs highest priority first: the emergency token takes the
	// reserved remainder, the priority token the open capacity, and the
	// walk-in now hits the emergency reservation
	assert.Equal(t, 2, stats.Reallocated)
	assert.Equal(t, 1, stats.Failed)

	slot, err := repo.GetSlotInstance(ctx, SlotKey{ProviderID: p.ID, Date: testDate, Start: 540, End: 600})
	require.NoError(t, err)
	assert.Equal(t, 2, slot.CurrentCount)
	assert.Equal(t, []string{numbers[2], numbers[1]}, slot.TokenNumbers,
		"emergency first, then priority, both keeping their original numbers")

	// token rows are never rewritten during a re-pack
	tokens, err := ctrl.ListTokens(ctx, TokenFilter{ProviderID: p.ID, Date: testDate})
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	for _, tok := range tokens {
		assert.Equal(t, TokenConfirmed, tok.Status)
		assert.Contains(t, numbers, tok.Number)
	}
}

func TestReallocateIdempotentBelowReservation(t *testing.T) {
	ctx := context.Background()
	eng, ctrl, repo := newTestReallocator(t)
	p := newTestProvider(t, ctrl, "General Medicine",
		SlotTemplate{Start: 540, End: 600, MaxCapacity: 10})

	for i := 0; i < 3; i++ {
		res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelOnline))
		require.NoError(t, err)
		require.True(t, res.Admitted)
	}

	for run := 0; run < 2; run++ {
		stats, err := eng.Reallocate(ctx, p.ID, testDate)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Reallocated, "run %d", run)
		assert.Equal(t, 0, stats.Failed, "run %d", run)
	}

	slot, err := repo.GetSlotInstance(ctx, SlotKey{ProviderID: p.ID, Date: testDate, Start: 540, End: 600})
	require.NoError(t, err)
	assert.Equal(t, 3, slot.CurrentCount)
}

func TestReallocateSkipsReleasedTokens(t *testing.T) {
	ctx := context.Background()
	eng, ctrl, repo := newTestReallocator(t)
	p := newTestProvider(t, ctrl, "General Medicine",
		SlotTemplate{Start: 540, End: 600, MaxCapacity: 10})

	res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	keep := res.Admission.Token

	res, err = ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	_, err = ctrl.Cancel(ctx, res.Admission.Token.ID)
	require.NoError(t, err)

	stats, err := eng.Reallocate(ctx, p.ID, testDate)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total, "only confirmed tokens are replayed")
	assert.Equal(t, 1, stats.Reallocated)

	slot, err := repo.GetSlotInstance(ctx, SlotKey{ProviderID: p.ID, Date: testDate, Start: 540, End: 600})
	require.NoError(t, err)
	assert.Equal(t, []string{keep.Number}, slot.TokenNumbers)
}

func TestReallocateEmptyDay(t *testing.T) {
	eng, ctrl, _ := newTestReallocator(t)
	p := newTestProvider(t, ctrl, "General Medicine")

	stats, err := eng.Reallocate(context.Background(), p.ID, testDate)
	require.NoError(t, err)
	assert.Equal(t, &ReallocationStats{}, stats)
}

func TestReallocateUnknownProvider(t *testing.T) {
	eng, _, _ := newTestReallocator(t)
	_, err := eng.Reallocate(context.Background(), uuid.New(), testDate)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestReallocateScheduleBusy(t *testing.T) {
	repo := NewMemoryRepository()
	ctrl := NewController(repo, nopLocker{}, nil, time.UTC, zap.NewNop())
	eng := NewReallocator(repo, ctrl, busyLocker{}, zap.NewNop())
	p := newTestProvider(t, ctrl, "General Medicine")

	_, err := eng.Reallocate(context.Background(), p.ID, testDate)
	assert.ErrorIs(t, err, ErrScheduleBusy)
}

package admission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSlot(capacity int) *SlotInstance {
	return &SlotInstance{
		Key:               SlotKey{ProviderID: uuid.New(), Date: "2025-03-14", Start: 540, End: 600},
		MaxCapacity:       capacity,
		ReservedEmergency: defaultEmergencyReservation,
		Status:            SlotAvailable,
	}
}

func TestReserveRegular(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())

	t.Run("fills up to the emergency reservation", func(t *testing.T) {
		slot := testSlot(5)

		for i := 0; i < 4; i++ {
			reason, ok := reg.ReserveRegular(slot, NewTokenNumber(false, time.Now()), false)
			require.True(t, ok, "admission %d, got reason %s", i+1, reason)
		}
		assert.Equal(t, 4, slot.CurrentCount)
		assert.Equal(t, SlotAvailable, slot.Status)

		// only the reserved unit is left
		reason, ok := reg.ReserveRegular(slot, NewTokenNumber(false, time.Now()), false)
		assert.False(t, ok)
		assert.Equal(t, ReasonEmergencyReserved, reason)
		assert.Equal(t, 4, slot.CurrentCount, "rejection must not consume capacity")
	})

	t.Run("emergency request may take the reserved unit", func(t *testing.T) {
		slot := testSlot(5)
		slot.CurrentCount = 4

		reason, ok := reg.ReserveRegular(slot, NewTokenNumber(true, time.Now()), true)
		require.True(t, ok, "got reason %s", reason)
		assert.Equal(t, 5, slot.CurrentCount)
		assert.Equal(t, SlotFull, slot.Status)
	})

	t.Run("full slot rejects everyone", func(t *testing.T) {
		slot := testSlot(5)
		slot.CurrentCount = 5
		slot.Status = SlotFull

		reason, ok := reg.ReserveRegular(slot, NewTokenNumber(false, time.Now()), false)
		assert.False(t, ok)
		assert.Equal(t, ReasonSlotFull, reason)

		reason, ok = reg.ReserveRegular(slot, NewTokenNumber(true, time.Now()), true)
		assert.False(t, ok)
		assert.Equal(t, ReasonSlotFull, reason, "regular path never uses the overflow unit")
	})
}

func TestReserveEmergency(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())

	slot := testSlot(5)
	slot.CurrentCount = 5
	slot.Status = SlotFull

	ok := reg.ReserveEmergency(slot, NewTokenNumber(true, time.Now()))
	require.True(t, ok, "one overflow unit beyond capacity")
	assert.Equal(t, 6, slot.CurrentCount)
	assert.Equal(t, SlotFull, slot.Status)

	ok = reg.ReserveEmergency(slot, NewTokenNumber(true, time.Now()))
	assert.False(t, ok, "only a single overflow unit exists")
	assert.Equal(t, 6, slot.CurrentCount)
}

func TestRelease(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())

	slot := testSlot(2)
	reg.ReserveRegular(slot, "TKN-1", false)
	reg.ReserveRegular(slot, "TKN-2", true)
	require.Equal(t, SlotFull, slot.Status)

	reg.Release(slot, "TKN-1")
	assert.Equal(t, 1, slot.CurrentCount)
	assert.Equal(t, []string{"TKN-2"}, slot.TokenNumbers)
	assert.Equal(t, SlotAvailable, slot.Status, "slot reopens below capacity")

	reg.Release(slot, "TKN-2")
	reg.Release(slot, "TKN-ghost")
	assert.Equal(t, 0, slot.CurrentCount, "count never goes negative")
}

func TestFindNextAvailable(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	reg := NewRegistry(repo)

	provider := &Provider{
		ID: uuid.New(),
		Templates: []SlotTemplate{
			{Start: 540, End: 600, MaxCapacity: 2},
			{Start: 600, End: 660, MaxCapacity: 2},
			{Start: 660, End: 720, MaxCapacity: 3},
		},
	}
	date := Date("2025-03-14")

	// 10:00 is materialized and full, 11:00 is untouched
	full := &SlotInstance{
		Key:          SlotKey{ProviderID: provider.ID, Date: date, Start: 600, End: 660},
		MaxCapacity:  2,
		CurrentCount: 2,
		Status:       SlotFull,
	}
	require.NoError(t, repo.SaveSlotInstance(ctx, full))

	next, err := reg.FindNextAvailable(ctx, provider, date, 540)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, MinuteOfDay(660), next.Start, "skips the full 10:00 slot")
	assert.Equal(t, 3, next.Available, "unmaterialized template counts as fully free")

	// strictly later than the requested start
	next, err = reg.FindNextAvailable(ctx, provider, date, 660)
	require.NoError(t, err)
	assert.Nil(t, next, "no slot after the last template")
}

package admission

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	redisclient "github.com/medqueue/opd-admission/internal/redis"
)

// nopLocker runs the critical section inline. The real locker is
// exercised against Redis; these tests cover decision logic.
type nopLocker struct{}

func (nopLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

const testDate = Date("2025-03-14")

func newTestController(t *testing.T) (*Controller, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	ctrl := NewController(repo, nopLocker{}, nil, time.UTC, zap.NewNop())
	return ctrl, repo
}

func newTestProvider(t *testing.T, ctrl *Controller, spec string, templates ...SlotTemplate) *Provider {
	t.Helper()
	if len(templates) == 0 {
		templates = []SlotTemplate{
			{Start: 540, End: 600, MaxCapacity: 10},
			{Start: 600, End: 660, MaxCapacity: 10},
		}
	}
	p := &Provider{Name: "Dr. Test", Specialization: spec, Templates: templates}
	require.NoError(t, ctrl.CreateProvider(context.Background(), p))
	return p
}

func allocReq(p *Provider, start, end MinuteOfDay, ch Channel) AllocateRequest {
	return AllocateRequest{
		PatientName: "Asha Rao",
		PatientAge:  34,
		ProviderID:  p.ID,
		Date:        testDate,
		Start:       start,
		End:         end,
		Channel:     ch,
	}
}

func TestAllocateFirstToken(t *testing.T) {
	ctx := context.Background()
	ctrl, repo := newTestController(t)
	p := newTestProvider(t, ctrl, "General Medicine")

	res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	require.True(t, res.Admitted)

	adm := res.Admission
	assert.Equal(t, 1, adm.CurrentCount)
	assert.Equal(t, 10, adm.MaxCapacity)
	assert.Equal(t, 0, adm.EstimatedWaitMin, "first token waits zero minutes")
	assert.Equal(t, testDate.At(540, time.UTC), adm.EstimatedTime)

	token := adm.Token
	assert.True(t, strings.HasPrefix(token.Number, "TKN-"))
	assert.Equal(t, 5, token.PriorityRank)
	assert.Equal(t, TokenConfirmed, token.Status)
	assert.False(t, token.IsEmergency)

	stored, err := repo.GetTokenByID(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, TokenConfirmed, stored.Status)

	slot, err := repo.GetSlotInstance(ctx, adm.Slot)
	require.NoError(t, err)
	assert.Equal(t, 1, slot.CurrentCount)
	assert.Equal(t, []string{token.Number}, slot.TokenNumbers)
}

func TestAllocateWaitEstimation(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)
	p := newTestProvider(t, ctrl, "General Medicine",
		SlotTemplate{Start: 540, End: 600, MaxCapacity: 8})

	var last *Admission
	for i := 0; i < 3; i++ {
		res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelOnline))
		require.NoError(t, err)
		require.True(t, res.Admitted)
		last = res.Admission
	}

	// (3-1)*60/8 with integer division
	assert.Equal(t, 15, last.EstimatedWaitMin)
	assert.Equal(t, testDate.At(540, time.UTC).Add(15*time.Minute), last.EstimatedTime)
}

func TestAllocateInvalidSlot(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)
	p := newTestProvider(t, ctrl, "General Medicine")

	res, err := ctrl.Allocate(ctx, allocReq(p, 480, 540, ChannelWalkin))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, ReasonInvalidSlot, res.Reason)
	require.Len(t, res.SuggestedSlots, 2, "all published templates are suggested")
	assert.Equal(t, MinuteOfDay(540), res.SuggestedSlots[0].Start)
}

func TestAllocateEmergencyReservation(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)
	p := newTestProvider(t, ctrl, "General Medicine",
		SlotTemplate{Start: 540, End: 600, MaxCapacity: 2},
		SlotTemplate{Start: 600, End: 660, MaxCapacity: 2})

	res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	require.True(t, res.Admitted)

	// one regular unit and one reserved unit; the second walk-in is
	// turned away without consuming the reservation
	res, err = ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, ReasonEmergencyReserved, res.Reason)
	require.Len(t, res.SuggestedSlots, 1)
	assert.Equal(t, MinuteOfDay(600), res.SuggestedSlots[0].Start)
	assert.Equal(t, 2, res.SuggestedSlots[0].Available)

	// an emergency-channel request may take the reserved unit
	res, err = ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelEmergency))
	require.NoError(t, err)
	require.True(t, res.Admitted)
	assert.Equal(t, 2, res.Admission.CurrentCount)
	assert.True(t, strings.HasPrefix(res.Admission.Token.Number, "EMG-"))
	assert.Equal(t, 1, res.Admission.Token.PriorityRank)

	// now the slot is genuinely full
	res, err = ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, ReasonSlotFull, res.Reason)
}

func TestAllocateEmergencyOverflow(t *testing.T) {
	ctx := context.Background()
	ctrl, repo := newTestController(t)
	p := newTestProvider(t, ctrl, "Cardiology",
		SlotTemplate{Start: 540, End: 600, MaxCapacity: 5})

	for i := 0; i < 4; i++ {
		res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
		require.NoError(t, err)
		require.True(t, res.Admitted)
	}
	res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelEmergency))
	require.NoError(t, err)
	require.True(t, res.Admitted)
	require.Equal(t, 5, res.Admission.CurrentCount)

	// the day is at capacity; an emergency still gets the overflow unit
	emReq := EmergencyRequest{PatientName: "Ravi Iyer", PatientAge: 61, ProviderID: p.ID, Date: testDate}
	res, err = ctrl.AllocateEmergency(ctx, emReq)
	require.NoError(t, err)
	require.True(t, res.Admitted)
	assert.Equal(t, 6, res.Admission.CurrentCount)
	assert.Equal(t, 0, res.Admission.EstimatedWaitMin)
	assert.True(t, strings.HasPrefix(res.Admission.Token.Number, "EMG-"))

	slot, err := repo.GetSlotInstance(ctx, res.Admission.Slot)
	require.NoError(t, err)
	assert.Equal(t, 6, slot.CurrentCount)
	assert.Equal(t, SlotFull, slot.Status)

	// the overflow unit is single use
	res, err = ctrl.AllocateEmergency(ctx, emReq)
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, ReasonNoCapacity, res.Reason)
}

func TestAllocateEmergencyPeerSuggestions(t *testing.T) {
	ctx := context.Background()
	ctrl, repo := newTestController(t)
	p := newTestProvider(t, ctrl, "Cardiology",
		SlotTemplate{Start: 540, End: 600, MaxCapacity: 1})
	peer := newTestProvider(t, ctrl, "Cardiology")
	newTestProvider(t, ctrl, "Dermatology") // wrong specialization, never suggested

	// materialize the only slot at overflow capacity
	require.NoError(t, repo.SaveSlotInstance(ctx, &SlotInstance{
		Key:          SlotKey{ProviderID: p.ID, Date: testDate, Start: 540, End: 600},
		MaxCapacity:  1,
		CurrentCount: 2,
		Status:       SlotFull,
	}))

	res, err := ctrl.AllocateEmergency(ctx, EmergencyRequest{
		PatientName: "Ravi Iyer", PatientAge: 61, ProviderID: p.ID, Date: testDate,
	})
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, ReasonNoCapacity, res.Reason)
	require.Len(t, res.SuggestedProviders, 1)
	assert.Equal(t, peer.ID.String(), res.SuggestedProviders[0].ID)
}

func TestEmergencyScansOnlyMaterializedSlots(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)
	p := newTestProvider(t, ctrl, "Cardiology")

	// nothing admitted yet, so no slot instances exist for the day
	res, err := ctrl.AllocateEmergency(ctx, EmergencyRequest{
		PatientName: "Ravi Iyer", PatientAge: 61, ProviderID: p.ID, Date: testDate,
	})
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, ReasonNoCapacity, res.Reason)
}

func TestCancelReleasesCapacity(t *testing.T) {
	ctx := context.Background()
	ctrl, repo := newTestController(t)
	p := newTestProvider(t, ctrl, "General Medicine",
		SlotTemplate{Start: 540, End: 600, MaxCapacity: 2})

	res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	require.True(t, res.Admitted)
	token := res.Admission.Token

	rel, err := ctrl.Cancel(ctx, token.ID)
	require.NoError(t, err)
	assert.True(t, rel.Released)
	assert.Equal(t, TokenCancelled, rel.Token.Status)

	slot, err := repo.GetSlotInstance(ctx, res.Admission.Slot)
	require.NoError(t, err)
	assert.Equal(t, 0, slot.CurrentCount)
	assert.Equal(t, SlotAvailable, slot.Status)
	assert.Empty(t, slot.TokenNumbers)

	// the freed unit is admittable again
	res, err = ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	assert.True(t, res.Admitted)
}

func TestCancelTwice(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)
	p := newTestProvider(t, ctrl, "General Medicine")

	res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	token := res.Admission.Token

	_, err = ctrl.Cancel(ctx, token.ID)
	require.NoError(t, err)

	rel, err := ctrl.Cancel(ctx, token.ID)
	require.NoError(t, err)
	assert.False(t, rel.Released)
	assert.Equal(t, ReasonAlreadyCancelled, rel.Reason)
}

func TestMarkNoShow(t *testing.T) {
	ctx := context.Background()
	ctrl, repo := newTestController(t)
	p := newTestProvider(t, ctrl, "General Medicine")

	res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	require.NoError(t, err)
	token := res.Admission.Token

	rel, err := ctrl.MarkNoShow(ctx, token.ID)
	require.NoError(t, err)
	assert.True(t, rel.Released)
	assert.Equal(t, TokenNoShow, rel.Token.Status, "no-show is distinct from cancelled")

	slot, err := repo.GetSlotInstance(ctx, res.Admission.Slot)
	require.NoError(t, err)
	assert.Equal(t, 0, slot.CurrentCount)
}

func TestCancelUnknownToken(t *testing.T) {
	ctrl, _ := newTestController(t)
	_, err := ctrl.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestAllocateUnknownProvider(t *testing.T) {
	ctrl, _ := newTestController(t)
	req := AllocateRequest{
		PatientName: "Asha Rao", PatientAge: 34,
		ProviderID: uuid.New(), Date: testDate,
		Start: 540, End: 600, Channel: ChannelWalkin,
	}
	_, err := ctrl.Allocate(context.Background(), req)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestListTokensPriorityOrder(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)
	p := newTestProvider(t, ctrl, "General Medicine",
		SlotTemplate{Start: 540, End: 600, MaxCapacity: 10})

	for _, ch := range []Channel{ChannelWalkin, ChannelFollowup, ChannelPriority, ChannelOnline} {
		res, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ch))
		require.NoError(t, err)
		require.True(t, res.Admitted)
	}

	tokens, err := ctrl.ListTokens(ctx, TokenFilter{ProviderID: p.ID, Date: testDate})
	require.NoError(t, err)
	require.Len(t, tokens, 4)

	ranks := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		ranks = append(ranks, tok.PriorityRank)
	}
	assert.Equal(t, []int{2, 3, 4, 5}, ranks)
}

func TestScheduleBusy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	ctrl := NewController(repo, busyLocker{}, nil, time.UTC, zap.NewNop())
	p := &Provider{Name: "Dr. Test", Specialization: "ENT", Templates: []SlotTemplate{{Start: 540, End: 600, MaxCapacity: 5}}}
	require.NoError(t, ctrl.CreateProvider(ctx, p))

	_, err := ctrl.Allocate(ctx, allocReq(p, 540, 600, ChannelWalkin))
	assert.ErrorIs(t, err, ErrScheduleBusy)
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

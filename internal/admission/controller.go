package admission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/medqueue/opd-admission/internal/redis"
)

// nominalSlotMinutes is the assumed slot duration used for wait
// estimation: consultations are spread evenly across one hour.
const nominalSlotMinutes = 60

// maxPeerSuggestions caps the alternate providers offered when an
// emergency finds no capacity anywhere in the day.
const maxPeerSuggestions = 3

// ErrScheduleBusy means another admission or a reallocation currently
// holds the provider's day; the caller should retry shortly.
var ErrScheduleBusy = errors.New("provider schedule is busy, please retry")

// Notifier receives best-effort capacity-freed events after a cancel or
// no-show. Failures never affect the admission outcome.
type Notifier interface {
	CapacityFreed(ctx context.Context, slot *SlotInstance)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) CapacityFreed(context.Context, *SlotInstance) {}

// AllocateRequest is the input for a regular admission.
type AllocateRequest struct {
	PatientName string
	PatientAge  int
	ProviderID  uuid.UUID
	Date        Date
	Start       MinuteOfDay
	End         MinuteOfDay
	Channel     Channel
}

// EmergencyRequest is the input for an emergency admission. No target
// slot: the controller walks the day's slots itself.
type EmergencyRequest struct {
	PatientName string
	PatientAge  int
	ProviderID  uuid.UUID
	Date        Date
}

// Controller is the single entry point for admission decisions. It is
// stateless: all slot and token state lives behind the Repository, and
// every mutation for a provider/day runs inside the locker's critical
// section for that day.
type Controller struct {
	repo     Repository
	registry *Registry
	locker   redisclient.Locker
	notifier Notifier
	loc      *time.Location
	log      *zap.Logger
}

func NewController(repo Repository, locker redisclient.Locker, notifier Notifier, loc *time.Location, log *zap.Logger) *Controller {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Controller{
		repo:     repo,
		registry: NewRegistry(repo),
		locker:   locker,
		notifier: notifier,
		loc:      loc,
		log:      log,
	}
}

func dayLockKey(providerID uuid.UUID, date Date) string {
	return fmt.Sprintf("provider:%s:%s", providerID, date)
}

// Allocate admits a request into its target slot, or rejects it with a
// reason and a next-slot suggestion. Infra failures travel the error
// return; business rejections are part of the result.
func (c *Controller) Allocate(ctx context.Context, req AllocateRequest) (*AllocateResult, error) {
	provider, err := c.repo.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	var result *AllocateResult
	err = c.locker.WithLock(ctx, dayLockKey(req.ProviderID, req.Date), func(lockCtx context.Context) error {
		var innerErr error
		result, innerErr = c.allocate(lockCtx, provider, req)
		return innerErr
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrScheduleBusy
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Controller) allocate(ctx context.Context, provider *Provider, req AllocateRequest) (*AllocateResult, error) {
	key := SlotKey{ProviderID: provider.ID, Date: req.Date, Start: req.Start, End: req.End}

	slot, err := c.registry.GetOrCreate(ctx, provider, key)
	if errors.Is(err, ErrInvalidSlot) {
		return rejected(ReasonInvalidSlot, templateSuggestions(provider)), nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	emergency := req.Channel == ChannelEmergency
	number := NewTokenNumber(emergency, now)

	reason, ok := c.registry.ReserveRegular(slot, number, emergency)
	if !ok {
		return c.rejectWithNextSlot(ctx, provider, req.Date, req.Start, reason)
	}

	waitMin := (slot.CurrentCount - 1) * nominalSlotMinutes / slot.MaxCapacity
	estimated := req.Date.At(req.Start, c.loc).Add(time.Duration(waitMin) * time.Minute)

	token := &Token{
		ID:                  uuid.New(),
		Number:              number,
		PatientName:         req.PatientName,
		PatientAge:          req.PatientAge,
		ProviderID:          provider.ID,
		Date:                req.Date,
		Start:               req.Start,
		End:                 req.End,
		Channel:             req.Channel,
		PriorityRank:        PriorityRank(req.Channel, emergency),
		Status:              TokenConfirmed,
		EstimatedServiceMin: nominalSlotMinutes / slot.MaxCapacity,
		EstimatedTime:       estimated,
		IsEmergency:         emergency,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := c.repo.SaveAdmission(ctx, slot, token); err != nil {
		return nil, fmt.Errorf("save admission: %w", err)
	}

	return &AllocateResult{
		Admitted: true,
		Admission: &Admission{
			Token:            token,
			Slot:             key,
			CurrentCount:     slot.CurrentCount,
			MaxCapacity:      slot.MaxCapacity,
			EstimatedTime:    estimated,
			EstimatedWaitMin: waitMin,
		},
	}, nil
}

func (c *Controller) rejectWithNextSlot(ctx context.Context, provider *Provider, date Date, after MinuteOfDay, reason RejectReason) (*AllocateResult, error) {
	next, err := c.registry.FindNextAvailable(ctx, provider, date, after)
	if err != nil {
		return nil, err
	}
	var slots []SlotSuggestion
	if next != nil {
		slots = []SlotSuggestion{*next}
	}
	return rejected(reason, slots), nil
}

// AllocateEmergency walks the day's materialized slots in start-time
// order and admits into the first one with room, allowing the single
// overflow unit per slot. When the whole day is exhausted it suggests up
// to three peer providers with the same specialization.
func (c *Controller) AllocateEmergency(ctx context.Context, req EmergencyRequest) (*AllocateResult, error) {
	provider, err := c.repo.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	var result *AllocateResult
	err = c.locker.WithLock(ctx, dayLockKey(req.ProviderID, req.Date), func(lockCtx context.Context) error {
		var innerErr error
		result, innerErr = c.allocateEmergency(lockCtx, provider, req)
		return innerErr
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrScheduleBusy
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Controller) allocateEmergency(ctx context.Context, provider *Provider, req EmergencyRequest) (*AllocateResult, error) {
	slots, err := c.repo.ListSlotInstances(ctx, provider.ID, req.Date)
	if err != nil {
		return nil, fmt.Errorf("list slot instances: %w", err)
	}

	now := time.Now()
	number := NewTokenNumber(true, now)

	for i := range slots {
		slot := &slots[i]
		if slot.Status == SlotCompleted || slot.Status == SlotCancelled {
			continue
		}
		if !c.registry.ReserveEmergency(slot, number) {
			continue
		}

		estimated := req.Date.At(slot.Key.Start, c.loc)
		token := &Token{
			ID:                  uuid.New(),
			Number:              number,
			PatientName:         req.PatientName,
			PatientAge:          req.PatientAge,
			ProviderID:          provider.ID,
			Date:                req.Date,
			Start:               slot.Key.Start,
			End:                 slot.Key.End,
			Channel:             ChannelEmergency,
			PriorityRank:        PriorityRank(ChannelEmergency, true),
			Status:              TokenConfirmed,
			EstimatedServiceMin: nominalSlotMinutes / slot.MaxCapacity,
			EstimatedTime:       estimated,
			IsEmergency:         true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}

		if err := c.repo.SaveAdmission(ctx, slot, token); err != nil {
			return nil, fmt.Errorf("save emergency admission: %w", err)
		}

		return &AllocateResult{
			Admitted: true,
			Admission: &Admission{
				Token:            token,
				Slot:             slot.Key,
				CurrentCount:     slot.CurrentCount,
				MaxCapacity:      slot.MaxCapacity,
				EstimatedTime:    estimated,
				EstimatedWaitMin: 0,
			},
		}, nil
	}

	peers, err := c.repo.ListPeers(ctx, provider.Specialization, provider.ID, maxPeerSuggestions)
	if err != nil {
		return nil, fmt.Errorf("list peer providers: %w", err)
	}

	suggestions := make([]ProviderSuggestion, 0, len(peers))
	for _, p := range peers {
		suggestions = append(suggestions, ProviderSuggestion{
			ID:             p.ID.String(),
			Name:           p.Name,
			Specialization: p.Specialization,
		})
	}

	return &AllocateResult{Reason: ReasonNoCapacity, SuggestedProviders: suggestions}, nil
}

// Cancel transitions a token to cancelled and releases its slot
// capacity. Cancelling twice yields an AlreadyCancelled rejection.
func (c *Controller) Cancel(ctx context.Context, tokenID uuid.UUID) (*ReleaseResult, error) {
	return c.release(ctx, tokenID, TokenCancelled)
}

// MarkNoShow transitions a token to no_show. The slot-release path is
// shared with Cancel; only the stored status differs.
func (c *Controller) MarkNoShow(ctx context.Context, tokenID uuid.UUID) (*ReleaseResult, error) {
	return c.release(ctx, tokenID, TokenNoShow)
}

func (c *Controller) release(ctx context.Context, tokenID uuid.UUID, to TokenStatus) (*ReleaseResult, error) {
	token, err := c.repo.GetTokenByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.Status == TokenCancelled {
		return &ReleaseResult{Reason: ReasonAlreadyCancelled, Token: token}, nil
	}

	var freed *SlotInstance
	err = c.locker.WithLock(ctx, dayLockKey(token.ProviderID, token.Date), func(lockCtx context.Context) error {
		token.Status = to
		token.UpdatedAt = time.Now()

		key := SlotKey{ProviderID: token.ProviderID, Date: token.Date, Start: token.Start, End: token.End}
		slot, err := c.repo.GetSlotInstance(lockCtx, key)
		if errors.Is(err, ErrSlotNotFound) {
			// The day was reallocated from under the token; the status
			// change is still recorded.
			return c.repo.SaveToken(lockCtx, token)
		}
		if err != nil {
			return fmt.Errorf("load slot instance: %w", err)
		}

		c.registry.Release(slot, token.Number)
		if err := c.repo.SaveRelease(lockCtx, slot, token); err != nil {
			return fmt.Errorf("save release: %w", err)
		}
		freed = slot
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrScheduleBusy
	}
	if err != nil {
		return nil, err
	}

	if freed != nil {
		c.notifier.CapacityFreed(ctx, freed)
	}

	return &ReleaseResult{Released: true, Token: token}, nil
}

// GetSchedule returns a provider's materialized slots for one day in
// start-time order.
func (c *Controller) GetSchedule(ctx context.Context, providerID uuid.UUID, date Date) ([]SlotInstance, error) {
	if _, err := c.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	return c.repo.ListSlotInstances(ctx, providerID, date)
}

// ListTokens returns tokens matching the filter in priority order.
func (c *Controller) ListTokens(ctx context.Context, f TokenFilter) ([]Token, error) {
	return c.repo.ListTokens(ctx, f)
}

// CreateProvider registers a provider with its recurring templates,
// normalized to ascending start order.
func (c *Controller) CreateProvider(ctx context.Context, p *Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	sort.Slice(p.Templates, func(i, j int) bool { return p.Templates[i].Start < p.Templates[j].Start })
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	return c.repo.CreateProvider(ctx, p)
}

// ListProviders returns providers, optionally filtered by specialization.
func (c *Controller) ListProviders(ctx context.Context, specialization string) ([]Provider, error) {
	return c.repo.ListProviders(ctx, specialization)
}

// UpdateTemplates replaces a provider's recurring templates. Slots
// already materialized keep the capacity copied at creation, so a
// published day never changes retroactively.
func (c *Controller) UpdateTemplates(ctx context.Context, providerID uuid.UUID, templates []SlotTemplate) error {
	if _, err := c.repo.GetProviderByID(ctx, providerID); err != nil {
		return err
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Start < templates[j].Start })
	return c.repo.ReplaceTemplates(ctx, providerID, templates)
}

// replayToken re-admits an existing token during reallocation. It runs
// the same reservation rules as allocate but reuses the token's number
// and never writes token rows. Caller holds the provider-day lock.
func (c *Controller) replayToken(ctx context.Context, provider *Provider, token *Token) (*AllocateResult, error) {
	key := SlotKey{ProviderID: provider.ID, Date: token.Date, Start: token.Start, End: token.End}

	slot, err := c.registry.GetOrCreate(ctx, provider, key)
	if errors.Is(err, ErrInvalidSlot) {
		return rejected(ReasonInvalidSlot, templateSuggestions(provider)), nil
	}
	if err != nil {
		return nil, err
	}

	reason, ok := c.registry.ReserveRegular(slot, token.Number, token.IsEmergency)
	if !ok {
		return c.rejectWithNextSlot(ctx, provider, token.Date, token.Start, reason)
	}

	if err := c.repo.SaveSlotInstance(ctx, slot); err != nil {
		return nil, fmt.Errorf("save slot instance: %w", err)
	}

	return &AllocateResult{
		Admitted: true,
		Admission: &Admission{
			Token:        token,
			Slot:         key,
			CurrentCount: slot.CurrentCount,
			MaxCapacity:  slot.MaxCapacity,
		},
	}, nil
}

func templateSuggestions(p *Provider) []SlotSuggestion {
	out := make([]SlotSuggestion, 0, len(p.Templates))
	for _, tpl := range p.Templates {
		out = append(out, SlotSuggestion{Start: tpl.Start, End: tpl.End, Available: tpl.MaxCapacity})
	}
	return out
}

package admission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidSlot means the requested time range is not one of the
// provider's published templates.
var ErrInvalidSlot = errors.New("time range not in provider's templates")

// defaultEmergencyReservation is the capacity held back for emergency
// admissions in every freshly materialized slot.
const defaultEmergencyReservation = 1

// Registry owns per-day slot capacity state. It materializes slot
// instances from provider templates, enforces capacity and emergency
// reservation on reserve, and searches forward for free capacity.
//
// Registry methods mutate slot instances in memory only; the caller
// persists the result atomically together with the token. All calls for
// a given provider/day must run inside that provider-day's critical
// section.
type Registry struct {
	repo Repository
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// GetOrCreate resolves the slot instance for the given key, materializing
// it from the provider's template on first use. A time range with no
// matching template fails with ErrInvalidSlot.
func (r *Registry) GetOrCreate(ctx context.Context, provider *Provider, key SlotKey) (*SlotInstance, error) {
	slot, err := r.repo.GetSlotInstance(ctx, key)
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, fmt.Errorf("load slot instance: %w", err)
	}

	tpl := provider.TemplateFor(key.Start, key.End)
	if tpl == nil {
		return nil, ErrInvalidSlot
	}

	now := time.Now()
	return &SlotInstance{
		Key:               key,
		MaxCapacity:       tpl.MaxCapacity,
		CurrentCount:      0,
		ReservedEmergency: defaultEmergencyReservation,
		Status:            SlotAvailable,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ReserveRegular admits one token into the slot's regular capacity.
// Capacity at or below the emergency reservation is off limits unless the
// request itself is an emergency, which may use the reserved remainder
// (but not the overflow unit; that is ReserveEmergency's job). The second
// return is false on rejection, with the reason in the first.
func (r *Registry) ReserveRegular(slot *SlotInstance, tokenNumber string, emergency bool) (RejectReason, bool) {
	available := slot.Available()
	if available <= 0 {
		return ReasonSlotFull, false
	}
	if !emergency && available <= slot.ReservedEmergency {
		return ReasonEmergencyReserved, false
	}

	slot.CurrentCount++
	slot.TokenNumbers = append(slot.TokenNumbers, tokenNumber)
	if slot.CurrentCount >= slot.MaxCapacity {
		slot.Status = SlotFull
	}
	slot.UpdatedAt = time.Now()
	return "", true
}

// ReserveEmergency admits one emergency token, allowing a single unit of
// overflow beyond MaxCapacity. Returns false when even the overflow unit
// is taken.
func (r *Registry) ReserveEmergency(slot *SlotInstance, tokenNumber string) bool {
	if slot.CurrentCount >= slot.MaxCapacity+1 {
		return false
	}

	slot.CurrentCount++
	slot.TokenNumbers = append(slot.TokenNumbers, tokenNumber)
	if slot.CurrentCount >= slot.MaxCapacity {
		slot.Status = SlotFull
	}
	slot.UpdatedAt = time.Now()
	return true
}

// Release frees the capacity held by tokenNumber. The count never drops
// below zero, and the slot reopens once below capacity.
func (r *Registry) Release(slot *SlotInstance, tokenNumber string) {
	if slot.CurrentCount > 0 {
		slot.CurrentCount--
	}
	for i, n := range slot.TokenNumbers {
		if n == tokenNumber {
			slot.TokenNumbers = append(slot.TokenNumbers[:i], slot.TokenNumbers[i+1:]...)
			break
		}
	}
	if slot.CurrentCount < slot.MaxCapacity {
		slot.Status = SlotAvailable
	}
	slot.UpdatedAt = time.Now()
}

// FindNextAvailable scans the provider's templates in ascending start
// order, strictly after the given start time, and returns the first with
// free capacity on the date. Templates without a materialized instance
// count as fully free. Returns nil when no later slot has capacity.
func (r *Registry) FindNextAvailable(ctx context.Context, provider *Provider, date Date, after MinuteOfDay) (*SlotSuggestion, error) {
	templates := make([]SlotTemplate, len(provider.Templates))
	copy(templates, provider.Templates)
	sort.Slice(templates, func(i, j int) bool { return templates[i].Start < templates[j].Start })

	for _, tpl := range templates {
		if tpl.Start <= after {
			continue
		}

		available := tpl.MaxCapacity
		key := SlotKey{ProviderID: provider.ID, Date: date, Start: tpl.Start, End: tpl.End}
		slot, err := r.repo.GetSlotInstance(ctx, key)
		if err == nil {
			available = slot.MaxCapacity - slot.CurrentCount
		} else if !errors.Is(err, ErrSlotNotFound) {
			return nil, fmt.Errorf("load slot instance: %w", err)
		}

		if available > 0 {
			return &SlotSuggestion{Start: tpl.Start, End: tpl.End, Available: available}, nil
		}
	}

	return nil, nil
}

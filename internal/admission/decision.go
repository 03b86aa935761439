package admission

import "time"

// RejectReason classifies a business-rule rejection. Rejections are
// decision values, not errors: callers branch on them and map them to
// transport responses.
type RejectReason string

const (
	ReasonInvalidSlot       RejectReason = "invalid_slot"
	ReasonSlotFull          RejectReason = "slot_full"
	ReasonEmergencyReserved RejectReason = "emergency_reserved"
	ReasonNoCapacity        RejectReason = "no_capacity"
	ReasonAlreadyCancelled  RejectReason = "already_cancelled"
)

// SlotSuggestion points a rejected caller at an alternative time range.
type SlotSuggestion struct {
	Start     MinuteOfDay
	End       MinuteOfDay
	Available int
}

// ProviderSuggestion points an emergency caller at an alternative provider.
type ProviderSuggestion struct {
	ID             string
	Name           string
	Specialization string
}

// Admission describes a granted allocation.
type Admission struct {
	Token            *Token
	Slot             SlotKey
	CurrentCount     int
	MaxCapacity      int
	EstimatedTime    time.Time
	EstimatedWaitMin int
}

// AllocateResult is the structured outcome of allocate and
// allocateEmergency. Exactly one of Admission or Reason is meaningful.
type AllocateResult struct {
	Admitted           bool
	Admission          *Admission
	Reason             RejectReason
	SuggestedSlots     []SlotSuggestion
	SuggestedProviders []ProviderSuggestion
}

func rejected(reason RejectReason, slots []SlotSuggestion) *AllocateResult {
	return &AllocateResult{Reason: reason, SuggestedSlots: slots}
}

// ReleaseResult is the structured outcome of cancel and markNoShow.
type ReleaseResult struct {
	Released bool
	Reason   RejectReason
	Token    *Token
}

// ReallocationStats summarizes a full-day re-pack.
type ReallocationStats struct {
	Reallocated int `json:"reallocated"`
	Failed      int `json:"failed"`
	Total       int `json:"total"`
}

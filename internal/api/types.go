package api

import (
	"time"

	"github.com/medqueue/opd-admission/internal/admission"
)

type CreateTokenRequest struct {
	PatientName string `json:"patient_name"`
	PatientAge  int    `json:"patient_age"`
	ProviderID  string `json:"provider_id"`
	Date        string `json:"date,omitempty"`
	Slot        string `json:"slot"` // "HH:MM-HH:MM"
	Channel     string `json:"channel"`
}

type EmergencyTokenRequest struct {
	PatientName string `json:"patient_name"`
	PatientAge  int    `json:"patient_age"`
	ProviderID  string `json:"provider_id"`
	Date        string `json:"date,omitempty"`
}

type TokenResponse struct {
	ID               string    `json:"id"`
	Number           string    `json:"number"`
	PatientName      string    `json:"patient_name"`
	ProviderID       string    `json:"provider_id"`
	Date             string    `json:"date"`
	Slot             string    `json:"slot"`
	Channel          string    `json:"channel"`
	PriorityRank     int       `json:"priority_rank"`
	Status           string    `json:"status"`
	EstimatedTime    time.Time `json:"estimated_time"`
	EstimatedWaitMin int       `json:"estimated_wait_min"`
	CurrentCount     int       `json:"current_count,omitempty"`
	MaxCapacity      int       `json:"max_capacity,omitempty"`
}

type SlotSuggestionResponse struct {
	Slot      string `json:"slot"`
	Available int    `json:"available"`
}

type ProviderSuggestionResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

type RejectionResponse struct {
	Error              string                       `json:"error"`
	Reason             string                       `json:"reason"`
	SuggestedSlots     []SlotSuggestionResponse     `json:"suggested_slots,omitempty"`
	SuggestedProviders []ProviderSuggestionResponse `json:"suggested_providers,omitempty"`
}

type CreateProviderRequest struct {
	Name           string                `json:"name"`
	Specialization string                `json:"specialization"`
	WorkingDays    []string              `json:"working_days,omitempty"`
	Slots          []SlotTemplateRequest `json:"slots"`
}

type SlotTemplateRequest struct {
	Slot        string `json:"slot"` // "HH:MM-HH:MM"
	MaxCapacity int    `json:"max_capacity"`
}

type ProviderResponse struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name"`
	Specialization string                   `json:"specialization"`
	WorkingDays    []string                 `json:"working_days,omitempty"`
	Slots          []SlotSuggestionResponse `json:"slots"`
}

type SlotInstanceResponse struct {
	Slot         string `json:"slot"`
	Status       string `json:"status"`
	CurrentCount int    `json:"current_count"`
	MaxCapacity  int    `json:"max_capacity"`
	Available    int    `json:"available"`
}

type ScheduleResponse struct {
	ProviderID string                 `json:"provider_id"`
	Date       string                 `json:"date"`
	Slots      []SlotInstanceResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func slotRange(start, end admission.MinuteOfDay) string {
	return start.String() + "-" + end.String()
}

func tokenResponse(t *admission.Token) TokenResponse {
	return TokenResponse{
		ID:            t.ID.String(),
		Number:        t.Number,
		PatientName:   t.PatientName,
		ProviderID:    t.ProviderID.String(),
		Date:          t.Date.String(),
		Slot:          slotRange(t.Start, t.End),
		Channel:       string(t.Channel),
		PriorityRank:  t.PriorityRank,
		Status:        string(t.Status),
		EstimatedTime: t.EstimatedTime,
	}
}

func admissionResponse(a *admission.Admission) TokenResponse {
	resp := tokenResponse(a.Token)
	resp.EstimatedWaitMin = a.EstimatedWaitMin
	resp.CurrentCount = a.CurrentCount
	resp.MaxCapacity = a.MaxCapacity
	return resp
}

func rejectionResponse(res *admission.AllocateResult) RejectionResponse {
	out := RejectionResponse{
		Error:  "admission_rejected",
		Reason: string(res.Reason),
	}
	for _, s := range res.SuggestedSlots {
		out.SuggestedSlots = append(out.SuggestedSlots, SlotSuggestionResponse{
			Slot:      slotRange(s.Start, s.End),
			Available: s.Available,
		})
	}
	for _, p := range res.SuggestedProviders {
		out.SuggestedProviders = append(out.SuggestedProviders, ProviderSuggestionResponse{
			ID:             p.ID,
			Name:           p.Name,
			Specialization: p.Specialization,
		})
	}
	return out
}

func providerResponse(p *admission.Provider) ProviderResponse {
	resp := ProviderResponse{
		ID:             p.ID.String(),
		Name:           p.Name,
		Specialization: p.Specialization,
		WorkingDays:    p.WorkingDays,
	}
	for _, tpl := range p.Templates {
		resp.Slots = append(resp.Slots, SlotSuggestionResponse{
			Slot:      slotRange(tpl.Start, tpl.End),
			Available: tpl.MaxCapacity,
		})
	}
	return resp
}

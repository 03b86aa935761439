package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medqueue/opd-admission/internal/admission"
)

func parseTemplates(reqs []SlotTemplateRequest) ([]admission.SlotTemplate, error) {
	templates := make([]admission.SlotTemplate, 0, len(reqs))
	for _, s := range reqs {
		start, end, err := parseSlotRange(s.Slot)
		if err != nil {
			return nil, err
		}
		if s.MaxCapacity < 1 {
			return nil, errors.New("max_capacity must be at least 1")
		}
		templates = append(templates, admission.SlotTemplate{
			Start:       start,
			End:         end,
			MaxCapacity: s.MaxCapacity,
		})
	}
	return templates, nil
}

func createProviderHandler(ctrl *admission.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "invalid_provider", "name is required")
			return
		}
		if len(req.Slots) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_provider", "at least one slot is required")
			return
		}

		templates, err := parseTemplates(req.Slots)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
			return
		}

		provider := &admission.Provider{
			Name:           req.Name,
			Specialization: req.Specialization,
			Templates:      templates,
			WorkingDays:    req.WorkingDays,
		}

		if err := ctrl.CreateProvider(r.Context(), provider); err != nil {
			handleAdmissionError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, providerResponse(provider))
	}
}

func listProvidersHandler(ctrl *admission.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := ctrl.ListProviders(r.Context(), r.URL.Query().Get("specialization"))
		if err != nil {
			handleAdmissionError(w, err)
			return
		}

		out := make([]ProviderResponse, 0, len(providers))
		for i := range providers {
			out = append(out, providerResponse(&providers[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getScheduleHandler(ctrl *admission.Controller, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		date, err := parseDateOrToday(r.URL.Query().Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		slots, err := ctrl.GetSchedule(r.Context(), providerID, date)
		if err != nil {
			handleAdmissionError(w, err)
			return
		}

		resp := ScheduleResponse{
			ProviderID: providerID.String(),
			Date:       date.String(),
			Slots:      make([]SlotInstanceResponse, 0, len(slots)),
		}
		for i := range slots {
			s := &slots[i]
			available := s.Available()
			if available < 0 {
				available = 0
			}
			resp.Slots = append(resp.Slots, SlotInstanceResponse{
				Slot:         slotRange(s.Key.Start, s.Key.End),
				Status:       string(s.Status),
				CurrentCount: s.CurrentCount,
				MaxCapacity:  s.MaxCapacity,
				Available:    available,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateTemplatesHandler(ctrl *admission.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		var req struct {
			Slots []SlotTemplateRequest `json:"slots"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if len(req.Slots) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_provider", "at least one slot is required")
			return
		}

		templates, err := parseTemplates(req.Slots)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
			return
		}

		if err := ctrl.UpdateTemplates(r.Context(), providerID, templates); err != nil {
			handleAdmissionError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

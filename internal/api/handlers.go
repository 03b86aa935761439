package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medqueue/opd-admission/internal/admission"
)

func createTokenHandler(ctrl *admission.Controller, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := validatePatient(req.PatientName, req.PatientAge); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient", err.Error())
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		start, end, err := parseSlotRange(req.Slot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
			return
		}

		channel, err := parseChannel(req.Channel)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_channel", err.Error())
			return
		}

		date, err := parseDateOrToday(req.Date, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		result, err := ctrl.Allocate(r.Context(), admission.AllocateRequest{
			PatientName: req.PatientName,
			PatientAge:  req.PatientAge,
			ProviderID:  providerID,
			Date:        date,
			Start:       start,
			End:         end,
			Channel:     channel,
		})
		if err != nil {
			handleAdmissionError(w, err)
			return
		}

		if !result.Admitted {
			writeJSON(w, rejectionStatus(result.Reason), rejectionResponse(result))
			return
		}

		writeJSON(w, http.StatusCreated, admissionResponse(result.Admission))
	}
}

func createEmergencyTokenHandler(ctrl *admission.Controller, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EmergencyTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := validatePatient(req.PatientName, req.PatientAge); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient", err.Error())
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		date, err := parseDateOrToday(req.Date, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		result, err := ctrl.AllocateEmergency(r.Context(), admission.EmergencyRequest{
			PatientName: req.PatientName,
			PatientAge:  req.PatientAge,
			ProviderID:  providerID,
			Date:        date,
		})
		if err != nil {
			handleAdmissionError(w, err)
			return
		}

		if !result.Admitted {
			writeJSON(w, rejectionStatus(result.Reason), rejectionResponse(result))
			return
		}

		writeJSON(w, http.StatusCreated, admissionResponse(result.Admission))
	}
}

func cancelTokenHandler(ctrl *admission.Controller) http.HandlerFunc {
	return releaseTokenHandler(ctrl.Cancel)
}

func noShowTokenHandler(ctrl *admission.Controller) http.HandlerFunc {
	return releaseTokenHandler(ctrl.MarkNoShow)
}

func releaseTokenHandler(release func(ctx context.Context, id uuid.UUID) (*admission.ReleaseResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_token_id", "id must be a valid UUID")
			return
		}

		result, err := release(r.Context(), id)
		if err != nil {
			handleAdmissionError(w, err)
			return
		}

		if !result.Released {
			writeError(w, http.StatusConflict, string(result.Reason), "token is already cancelled")
			return
		}

		writeJSON(w, http.StatusOK, tokenResponse(result.Token))
	}
}

func listProviderTokensHandler(ctrl *admission.Controller, loc *time.Location) http.HandlerFunc {
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

		filter := admission.TokenFilter{
			ProviderID: providerID,
			Date:       date,
			Status:     admission.TokenStatus(r.URL.Query().Get("status")),
		}

		tokens, err := ctrl.ListTokens(r.Context(), filter)
		if err != nil {
			handleAdmissionError(w, err)
			return
		}

		out := make([]TokenResponse, 0, len(tokens))
		for i := range tokens {
			out = append(out, tokenResponse(&tokens[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func reallocateHandler(eng *admission.Reallocator, loc *time.Location) http.HandlerFunc {
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

		stats, err := eng.Reallocate(r.Context(), providerID, date)
		if err != nil {
			handleAdmissionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

// rejectionStatus maps a business rejection to an HTTP status. Bad input
// is 400, everything capacity-related is a 409 conflict.
func rejectionStatus(reason admission.RejectReason) int {
	if reason == admission.ReasonInvalidSlot {
		return http.StatusBadRequest
	}
	return http.StatusConflict
}

func handleAdmissionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admission.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, admission.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "token_not_found", err.Error())
	case errors.Is(err, admission.ErrScheduleBusy):
		writeError(w, http.StatusConflict, "schedule_busy", "provider schedule is busy, please retry shortly")
	case errors.Is(err, admission.ErrDuplicateToken):
		writeError(w, http.StatusConflict, "duplicate_token", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

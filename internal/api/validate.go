package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/medqueue/opd-admission/internal/admission"
)

const maxPatientAge = 150

func validatePatient(name string, age int) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("patient_name is required")
	}
	if age < 0 || age > maxPatientAge {
		return fmt.Errorf("patient_age must be between 0 and %d", maxPatientAge)
	}
	return nil
}

// parseSlotRange parses "HH:MM-HH:MM" into start and end minutes.
func parseSlotRange(s string) (admission.MinuteOfDay, admission.MinuteOfDay, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("slot must be formatted HH:MM-HH:MM")
	}
	start, err := admission.ParseClock(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := admission.ParseClock(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("slot end must be after start")
	}
	return start, end, nil
}

func parseChannel(s string) (admission.Channel, error) {
	switch admission.Channel(s) {
	case admission.ChannelOnline, admission.ChannelWalkin, admission.ChannelPriority,
		admission.ChannelFollowup, admission.ChannelEmergency:
		return admission.Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// parseDateOrToday parses a 2006-01-02 date, defaulting to today in the
// clinic's timezone when the field is empty.
func parseDateOrToday(s string, loc *time.Location) (admission.Date, error) {
	if s == "" {
		return admission.DateOf(time.Now(), loc), nil
	}
	return admission.ParseDate(s)
}

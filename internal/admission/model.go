package admission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel is the origin of an admission request.
type Channel string

const (
	ChannelOnline    Channel = "online"
	ChannelWalkin    Channel = "walkin"
	ChannelPriority  Channel = "priority"
	ChannelFollowup  Channel = "followup"
	ChannelEmergency Channel = "emergency"
)

type TokenStatus string

const (
	TokenPending   TokenStatus = "pending"
	TokenConfirmed TokenStatus = "confirmed"
	TokenCompleted TokenStatus = "completed"
	TokenCancelled TokenStatus = "cancelled"
	TokenNoShow    TokenStatus = "no_show"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotFull      SlotStatus = "full"
	SlotCompleted SlotStatus = "completed"
	SlotCancelled SlotStatus = "cancelled"
)

// MinuteOfDay is a clock time expressed as minutes after midnight.
type MinuteOfDay int

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// ParseClock parses "HH:MM" into a MinuteOfDay.
func ParseClock(s string) (MinuteOfDay, error) {
	var h, min int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &min); err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if h < 0 || h > 23 || min < 0 || min > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return MinuteOfDay(h*60 + min), nil
}

// Date is a calendar day in the clinic's timezone, formatted 2006-01-02.
type Date string

// ParseDate validates and normalizes a 2006-01-02 date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q", s)
	}
	return Date(t.Format("2006-01-02")), nil
}

// DateOf converts a wall-clock instant into a Date in the given location.
func DateOf(t time.Time, loc *time.Location) Date {
	return Date(t.In(loc).Format("2006-01-02"))
}

// At returns the instant of the given minute-of-day on this date in loc.
func (d Date) At(m MinuteOfDay, loc *time.Location) time.Time {
	t, _ := time.ParseInLocation("2006-01-02", string(d), loc)
	return t.Add(time.Duration(m) * time.Minute)
}

func (d Date) String() string { return string(d) }

// SlotTemplate is a provider's recurring, capacity-bounded time range.
type SlotTemplate struct {
	Start       MinuteOfDay
	End         MinuteOfDay
	MaxCapacity int
}

type Provider struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	Templates      []SlotTemplate // ordered by start time
	WorkingDays    []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TemplateFor returns the template matching the exact time range, if any.
func (p *Provider) TemplateFor(start, end MinuteOfDay) *SlotTemplate {
	for i := range p.Templates {
		if p.Templates[i].Start == start && p.Templates[i].End == end {
			return &p.Templates[i]
		}
	}
	return nil
}

// SlotKey identifies one concrete slot occurrence.
type SlotKey struct {
	ProviderID uuid.UUID
	Date       Date
	Start      MinuteOfDay
	End        MinuteOfDay
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s:%s:%s-%s", k.ProviderID, k.Date, k.Start, k.End)
}

// SlotInstance is the stateful occurrence of a template on a specific date.
// CurrentCount may exceed MaxCapacity by at most one, the emergency overflow unit.
type SlotInstance struct {
	Key               SlotKey
	MaxCapacity       int
	CurrentCount      int
	ReservedEmergency int
	TokenNumbers      []string // admission order
	Status            SlotStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available reports the regular capacity left in the slot.
func (s *SlotInstance) Available() int {
	return s.MaxCapacity - s.CurrentCount
}

// Token is a patient's admission request for a specific slot.
type Token struct {
	ID                  uuid.UUID
	Number              string
	PatientName         string
	PatientAge          int
	ProviderID          uuid.UUID
	Date                Date
	Start               MinuteOfDay
	End                 MinuteOfDay
	Channel             Channel
	PriorityRank        int
	Status              TokenStatus
	EstimatedServiceMin int
	EstimatedTime       time.Time
	IsEmergency         bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewTokenNumber builds a human-readable unique token identifier.
// Emergency tokens carry an EMG prefix, all others TKN.
func NewTokenNumber(emergency bool, now time.Time) string {
	prefix := "TKN"
	if emergency {
		prefix = "EMG"
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), uuid.NewString()[:8])
}

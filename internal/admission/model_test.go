package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    MinuteOfDay
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"9:30", 570, false},
		{"24:00", 0, true},
		{"09:60", 0, true},
		{"morning", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestMinuteOfDayString(t *testing.T) {
	assert.Equal(t, "09:00", MinuteOfDay(540).String())
	assert.Equal(t, "00:05", MinuteOfDay(5).String())
	assert.Equal(t, "16:30", MinuteOfDay(990).String())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, Date("2025-03-14"), d)

	_, err = ParseDate("14-03-2025")
	assert.Error(t, err)
	_, err = ParseDate("2025-02-30")
	assert.Error(t, err)
}

func TestDateAt(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	at := Date("2025-03-14").At(540, loc)
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, "2025-03-14", at.Format("2006-01-02"))
	assert.Equal(t, loc, at.Location())
}

func TestNewTokenNumber(t *testing.T) {
	now := time.Now()

	regular := NewTokenNumber(false, now)
	emergency := NewTokenNumber(true, now)

	assert.Regexp(t, `^TKN-\d+-[0-9a-f]{8}$`, regular)
	assert.Regexp(t, `^EMG-\d+-[0-9a-f]{8}$`, emergency)
	assert.NotEqual(t, regular, NewTokenNumber(false, now), "numbers must be unique")
}

func TestProviderTemplateFor(t *testing.T) {
	p := &Provider{Templates: []SlotTemplate{
		{Start: 540, End: 600, MaxCapacity: 10},
		{Start: 600, End: 660, MaxCapacity: 8},
	}}

	tpl := p.TemplateFor(600, 660)
	require.NotNil(t, tpl)
	assert.Equal(t, 8, tpl.MaxCapacity)

	assert.Nil(t, p.TemplateFor(540, 660), "range must match exactly")
	assert.Nil(t, p.TemplateFor(660, 720))
}

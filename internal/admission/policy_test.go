package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityRank(t *testing.T) {
	tests := []struct {
		name      string
		channel   Channel
		emergency bool
		want      int
	}{
		{"emergency channel", ChannelEmergency, false, 1},
		{"priority channel", ChannelPriority, false, 2},
		{"followup channel", ChannelFollowup, false, 3},
		{"online channel", ChannelOnline, false, 4},
		{"walkin channel", ChannelWalkin, false, 5},
		{"emergency flag overrides channel", ChannelOnline, true, 1},
		{"emergency flag on walkin", ChannelWalkin, true, 1},
		{"unknown channel defaults to walkin rank", Channel("fax"), false, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriorityRank(tt.channel, tt.emergency))
		})
	}
}

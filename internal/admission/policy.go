package admission

// channelRanks orders admission channels from most to least urgent.
// Lower is served first.
var channelRanks = map[Channel]int{
	ChannelEmergency: 1,
	ChannelPriority:  2,
	ChannelFollowup:  3,
	ChannelOnline:    4,
	ChannelWalkin:    5,
}

// PriorityRank maps a request's origin channel to its priority rank.
// An emergency flag always yields rank 1 regardless of channel; unknown
// channels fall back to the lowest rank.
func PriorityRank(ch Channel, emergency bool) int {
	if emergency {
		return 1
	}
	if r, ok := channelRanks[ch]; ok {
		return r
	}
	return 5
}

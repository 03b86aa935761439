// Package notify publishes best-effort capacity events for waiting
// patients. Delivery is fire-and-forget: a failed publish is logged and
// swallowed, never surfaced to the admission path.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medqueue/opd-admission/internal/admission"
)

// CapacityChannel is the redis pub/sub channel capacity events land on.
const CapacityChannel = "opd:capacity-freed"

type capacityFreedEvent struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Available  int    `json:"available"`
}

// RedisNotifier publishes capacity-freed events to a redis channel.
type RedisNotifier struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisNotifier(client *redis.Client, log *zap.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, log: log}
}

func (n *RedisNotifier) CapacityFreed(ctx context.Context, slot *admission.SlotInstance) {
	ev := capacityFreedEvent{
		ProviderID: slot.Key.ProviderID.String(),
		Date:       slot.Key.Date.String(),
		Start:      slot.Key.Start.String(),
		End:        slot.Key.End.String(),
		Available:  slot.Available(),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Warn("marshal capacity event", zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := n.client.Publish(pubCtx, CapacityChannel, payload).Err(); err != nil {
		n.log.Warn("publish capacity event",
			zap.String("provider_id", ev.ProviderID),
			zap.Error(err))
	}
}

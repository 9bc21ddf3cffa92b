package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/logger"
	"github.com/redis/go-redis/v9"

	"tombola/internal/clock"
)

// Event is the payload published on the redis channel.
type Event struct {
	Type   string    `json:"type"`
	Count  int       `json:"count"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Redis publishes events so other processes (a display page, a second
// kiosk) can refresh without polling.
type Redis struct {
	client  redis.UniversalClient
	channel string
	clock   clock.Clock
	timeout time.Duration
}

// NewRedis publishes on channel through client.
func NewRedis(client redis.UniversalClient, channel string, clk clock.Clock) *Redis {
	return &Redis{client: client, channel: channel, clock: clk, timeout: 2 * time.Second}
}

func (r *Redis) TicketsUpdated(total int) {
	r.publish(Event{Type: EventTicketsUpdated, Count: total})
}

func (r *Redis) ParticipantsUpdated(unique int) {
	r.publish(Event{Type: EventParticipantsUpdated, Count: unique})
}

func (r *Redis) ParticipantsReset(reason string) {
	r.publish(Event{Type: EventParticipantsReset, Reason: reason})
}

func (r *Redis) publish(ev Event) {
	ev.At = r.clock.Now()
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("notify: encode %s: %v", ev.Type, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		logger.Warningf("notify: publish %s on %s: %v", ev.Type, r.channel, err)
	}
}

package heartbeat

import (
	"context"
	"time"

	"netif-go/bus"
	"netif-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}
	topicStatus          = bus.Topic{"heartbeat", "status"}
)

// Status is the retained liveness record.
type Status struct {
	UptimeS int64 `json:"uptime_s"`
	TS      int64 `json:"ts"`
}

type Service struct {
	started time.Time
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case <-tick.C:
			st := &Status{
				UptimeS: int64(time.Since(s.started) / time.Second),
				TS:      timex.NowMs(),
			}
			conn.Publish(conn.NewMessage(topicStatus, st, true))
		case msg := <-cfgSub.Channel():
			// Config section: {"interval": <seconds>}
			if m, ok := msg.Payload.(map[string]any); ok {
				if interval, ok := m["interval"].(float64); ok && interval > 0 {
					tick.Reset(time.Duration(interval * float64(time.Second)))
					println("Info: heartbeat interval set to", int(interval), "seconds")
				}
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.started = time.Now()
	go s.serviceLoop(ctx, conn)
	return nil
}

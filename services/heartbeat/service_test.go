package heartbeat

import (
	"context"
	"testing"
	"time"

	"netif-go/bus"
)

func TestHeartbeatPublishesRetainedStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(4)
	svc := &Service{}
	if err := svc.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		t.Fatal(err)
	}

	sub := b.NewConnection("test").Subscribe(topicStatus)
	select {
	case msg := <-sub.Channel():
		st, ok := msg.Payload.(*Status)
		if !ok {
			t.Fatalf("payload %T", msg.Payload)
		}
		if st.TS == 0 {
			t.Error("timestamp not set")
		}
		if !msg.Retained {
			t.Error("status must be retained")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no heartbeat within three intervals")
	}
}

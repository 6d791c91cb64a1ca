// bridge/bridge_test.go
package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"netif-go/bus"
)

func TestBridge_EstablishesUARTLinkAndReportsState(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	// Subscribe to bridge/state (retained) and verify initial status.
	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)

	first := nextStatePayload(t, stateSub, 500*time.Millisecond)
	assertLevelStatus(t, first, "idle", "awaiting_config")

	// Inject a UART dialler that returns a net.Pipe; keep the remote end to
	// simulate link loss.
	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	remoteCh := make(chan io.ReadWriteCloser, 1)
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remoteCh <- rc
		go remotePeer(rc)
		return lc, nil
	}

	// Publish a valid UART config.
	cfg := `{"transport":{"type":"uart","uart":{"baud":115200,"rx_pin":1,"tx_pin":0}}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))

	up := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "link_established")

	// Close the remote to force link loss; expect degraded state.
	remote := <-remoteCh
	_ = remote.Close()

	degraded := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, degraded, "degraded", "link_lost_retrying")
}

func TestBridge_UnknownTransportYieldsErrorState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge_test_bad")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)

	_ = nextStatePayload(t, stateSub, 500*time.Millisecond) // initial awaiting_config

	// Publish a config with an unknown transport type.
	cfg := `{"transport":{"type":"bogus"}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))

	errState := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, errState, "error", "transport_init_failed")
}

func TestBridge_ForwardsUplinkAndRoutesConfigDownlink(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test_fwd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)
	_ = nextStatePayload(t, stateSub, 500*time.Millisecond) // awaiting_config

	// Local subscriber proves downlink routing; must exist before publish.
	dnSub := conn.Subscribe(bus.Topic{"config", "netif"})
	defer conn.Unsubscribe(dnSub)

	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	remoteCh := make(chan io.ReadWriteCloser, 1)
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remoteCh <- rc
		return lc, nil
	}

	cfg := `{"transport":{"type":"uart","uart":{"baud":115200,"rx_pin":1,"tx_pin":0}}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))
	up := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "link_established")

	remote := <-remoteCh
	defer remote.Close()

	// Uplink: a local status publication must arrive as a pub frame.
	// Retained, so it reaches the bridge even if its uplink subscription
	// registers a moment after link-up is reported.
	conn.Publish(conn.NewMessage(bus.Topic{"netif", "status"}, map[string]any{"link": "on"}, true))

	wire := readPubFrame(t, remote, time.Second)
	if len(wire.Topic) != 2 || wire.Topic[0] != "netif" || wire.Topic[1] != "status" {
		t.Fatalf("uplink topic = %v", wire.Topic)
	}
	payload, ok := wire.Payload.(map[string]any)
	if !ok || payload["link"] != "on" {
		t.Fatalf("uplink payload = %#v", wire.Payload)
	}

	// Downlink: a remote config publication is republished locally.
	body, _ := json.Marshal(wireMessage{
		Topic:   bus.Topic{"config", "netif"},
		Payload: map[string]any{"ip": "10.3.3.3"},
	})
	hdr := []byte{framePub, byte(len(body) >> 8), byte(len(body))}
	if _, err := remote.Write(append(hdr, body...)); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-dnSub.Channel():
		p, ok := m.Payload.(map[string]any)
		if !ok || p["ip"] != "10.3.3.3" {
			t.Fatalf("downlink payload = %#v", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("remote config never routed to the local bus")
	}

	// Non-config remote topics must not be republished.
	hbSub := conn.Subscribe(bus.Topic{"heartbeat", "status"})
	defer conn.Unsubscribe(hbSub)
	body, _ = json.Marshal(wireMessage{
		Topic:   bus.Topic{"heartbeat", "status"},
		Payload: map[string]any{"uptime_s": 99},
	})
	hdr = []byte{framePub, byte(len(body) >> 8), byte(len(body))}
	if _, err := remote.Write(append(hdr, body...)); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-hbSub.Channel():
		t.Fatalf("remote impersonated a local service: %#v", m.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// remotePeer minimally services the framing used by the bridge: it replies
// PONG to PING and drains any payload of other frames. It exits on
// read/write error.
func remotePeer(c io.ReadWriteCloser) {
	defer c.Close()
	hdr := make([]byte, 3)
	buf := make([]byte, 0, 256)
	for {
		if _, err := io.ReadFull(c, hdr); err != nil {
			return
		}
		typ := hdr[0]
		n := int(hdr[1])<<8 | int(hdr[2])
		if n > 0 {
			if cap(buf) < n {
				buf = make([]byte, n)
			} else {
				buf = buf[:n]
			}
			if _, err := io.ReadFull(c, buf); err != nil {
				return
			}
		}
		if typ == framePing {
			if _, err := c.Write([]byte{framePong, 0x00, 0x00}); err != nil {
				return
			}
		}
	}
}

// readPubFrame reads frames off the remote end until a pub frame arrives.
func readPubFrame(t *testing.T, c io.ReadWriteCloser, d time.Duration) wireMessage {
	t.Helper()
	type result struct {
		m   wireMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		rd := newFramedReader(c)
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				done <- result{err: err}
				return
			}
			if f.Type != framePub {
				continue
			}
			var m wireMessage
			if err := json.Unmarshal(f.Payload, &m); err != nil {
				done <- result{err: err}
				return
			}
			done <- result{m: m}
			return
		}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("reading pub frame: %v", r.err)
		}
		return r.m
	case <-time.After(d):
		t.Fatal("timeout waiting for pub frame")
		return wireMessage{}
	}
}

func nextStatePayload(t *testing.T, sub *bus.Subscription, d time.Duration) map[string]any {
	t.Helper()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case m := <-sub.Channel():
		p, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("state payload type: got %T, want map[string]any", m.Payload)
		}
		return p
	case <-timer.C:
		t.Fatalf("timeout waiting for bridge/state")
		return nil
	}
}

func assertLevelStatus(t *testing.T, payload map[string]any, wantLevel, wantStatus string) {
	t.Helper()
	gotLevel, _ := payload["level"].(string)
	gotStatus, _ := payload["status"].(string)
	if gotLevel != wantLevel || gotStatus != wantStatus {
		t.Fatalf("unexpected state: level=%q status=%q, want level=%q status=%q (payload=%v)",
			gotLevel, gotStatus, wantLevel, wantStatus, payload)
	}
}

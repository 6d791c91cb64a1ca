// cmd/selftest: on-device sanity checks for the message bus.
//
// Runs the scenarios the package tests cover on the host, but under the
// TinyGo scheduler and allocator (tinygo flash -target pico ./bus/cmd/selftest).
package main

import (
	"time"

	"netif-go/bus"
)

type testFn struct {
	name string
	fn   func() bool
}

func recvWithin(sub *bus.Subscription, d time.Duration) (*bus.Message, bool) {
	select {
	case m := <-sub.Channel():
		return m, true
	case <-time.After(d):
		return nil, false
	}
}

func TestBasicPubSub() bool {
	b := bus.NewBus(4)
	conn := b.NewConnection("selftest")
	sub := conn.Subscribe(bus.Topic{"t", "basic"})
	defer conn.Unsubscribe(sub)

	conn.Publish(conn.NewMessage(bus.Topic{"t", "basic"}, "hello", false))
	m, ok := recvWithin(sub, 250*time.Millisecond)
	return ok && m.Payload == "hello"
}

func TestRetainedDeliveredOnSubscribe() bool {
	b := bus.NewBus(4)
	conn := b.NewConnection("selftest")

	conn.Publish(conn.NewMessage(bus.Topic{"t", "retained"}, "kept", true))
	sub := conn.Subscribe(bus.Topic{"t", "retained"})
	defer conn.Unsubscribe(sub)

	m, ok := recvWithin(sub, 250*time.Millisecond)
	return ok && m.Payload == "kept" && m.Retained
}

func TestRetainedCleared() bool {
	b := bus.NewBus(4)
	conn := b.NewConnection("selftest")

	conn.Publish(conn.NewMessage(bus.Topic{"t", "cleared"}, "kept", true))
	conn.Publish(conn.NewMessage(bus.Topic{"t", "cleared"}, nil, true))

	sub := conn.Subscribe(bus.Topic{"t", "cleared"})
	defer conn.Unsubscribe(sub)

	// Only the clearing message itself may arrive; the stored value is gone.
	m, ok := recvWithin(sub, 100*time.Millisecond)
	return !ok || m.Payload == nil
}

func TestDropOldestWhenFull() bool {
	b := bus.NewBus(2)
	conn := b.NewConnection("selftest")
	sub := conn.Subscribe(bus.Topic{"t", "full"})
	defer conn.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		conn.Publish(conn.NewMessage(bus.Topic{"t", "full"}, i, false))
	}
	// Queue length 2: the survivors are the two newest.
	m1, ok1 := recvWithin(sub, 250*time.Millisecond)
	m2, ok2 := recvWithin(sub, 250*time.Millisecond)
	return ok1 && ok2 && m1.Payload == 3 && m2.Payload == 4
}

func TestUnsubscribeClosesChannel() bool {
	b := bus.NewBus(4)
	conn := b.NewConnection("selftest")
	sub := conn.Subscribe(bus.Topic{"t", "closed"})
	conn.Unsubscribe(sub)

	select {
	case _, open := <-sub.Channel():
		return !open
	case <-time.After(250 * time.Millisecond):
		return false
	}
}

func main() {
	// Give the USB CDC time to enumerate so logs show up reliably.
	time.Sleep(250 * time.Millisecond)

	tests := []testFn{
		{"TestBasicPubSub", TestBasicPubSub},
		{"TestRetainedDeliveredOnSubscribe", TestRetainedDeliveredOnSubscribe},
		{"TestRetainedCleared", TestRetainedCleared},
		{"TestDropOldestWhenFull", TestDropOldestWhenFull},
		{"TestUnsubscribeClosesChannel", TestUnsubscribeClosesChannel},
	}

	passed, failed := 0, 0
	println("== bus self-test starting ==")
	for _, tc := range tests {
		if tc.fn() {
			println("[PASS]", tc.name)
			passed++
		} else {
			println("[FAIL]", tc.name)
			failed++
		}
		// tiny pause between tests to keep timings sane on MCU
		time.Sleep(10 * time.Millisecond)
	}
	println("== done:", passed, "passed,", failed, "failed ==")
}

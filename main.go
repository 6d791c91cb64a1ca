// Host-side simulation: runs the netif service against an in-memory chip so
// the bus surface (retained status, config/netif) can be exercised without
// hardware. Flash cmd/pico-netif for the real thing.
package main

import (
	"context"
	"encoding/json"
	"time"

	"netif-go/bus"
	"netif-go/services/config"
	"netif-go/services/heartbeat"
	"netif-go/services/netif"
	"netif-go/spibus"
	"netif-go/types"
)

// simDriver is an in-memory register set posing as a W5500.
type simDriver struct {
	mac  [6]byte
	ip   [4]byte
	gw   [4]byte
	mask [4]byte
}

func (d *simDriver) Init() error                  { return nil }
func (d *simDriver) BusSettings() spibus.Settings { return spibus.Settings{Frequency: 14_000_000} }
func (d *simDriver) Identity() uint8              { return 55 }
func (d *simDriver) LinkState() (uint8, error)    { return 1, nil }

func (d *simDriver) SetHardwareAddress(mac [6]byte) error { d.mac = mac; return nil }
func (d *simDriver) HardwareAddress() ([6]byte, error)    { return d.mac, nil }
func (d *simDriver) SetLocalAddress(ip [4]byte) error     { d.ip = ip; return nil }
func (d *simDriver) LocalAddress() ([4]byte, error)       { return d.ip, nil }
func (d *simDriver) SetGatewayAddress(ip [4]byte) error   { d.gw = ip; return nil }
func (d *simDriver) GatewayAddress() ([4]byte, error)     { return d.gw, nil }
func (d *simDriver) SetSubnetMask(mask [4]byte) error     { d.mask = mask; return nil }
func (d *simDriver) SubnetMask() ([4]byte, error)         { return d.mask, nil }

func (d *simDriver) SetRetransmissionTime(uint16) error { return nil }
func (d *simDriver) SetRetransmissionCount(uint8) error { return nil }

// nopSPI satisfies the raw bus; the simulated driver never touches it.
type nopSPI struct{}

func (nopSPI) Tx(w, r []byte) error        { return nil }
func (nopSPI) Transfer(byte) (byte, error) { return 0, nil }

func main() {
	println("boot: netif simulation")
	ctx := context.Background()

	shared := spibus.NewShared(nopSPI{})
	drv := &simDriver{}
	ctrl := netif.New(netif.Config{Bus: shared, Driver: drv})

	b := bus.NewBus(8)
	svc := netif.NewService(ctrl, time.Second)
	if err := svc.Start(ctx, b.NewConnection("netif")); err != nil {
		println("Error:", err.Error())
		return
	}
	hb := &heartbeat.Service{}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("Error:", err.Error())
		return
	}

	// The embedded "pico" config carries the boot-time netif section; the
	// netif service picks it up as a retained config/netif message.
	config.NewConfigService().Start(config.WithDevice(ctx, "pico"), b.NewConnection("config"))

	mon := b.NewConnection("console")
	sub := mon.Subscribe(bus.Topic{"netif", "status"})

	// After a few status ticks, push a JSON reconfiguration the way an
	// external manager would.
	go func() {
		time.Sleep(3 * time.Second)
		cfg, _ := json.Marshal(map[string]string{
			"mac": "de:ad:be:ef:fe:ed",
			"ip":  "10.1.1.5",
			"dns": "10.1.1.53",
		})
		mon.Publish(mon.NewMessage(bus.Topic{"config", "netif"}, cfg, false))
	}()

	for msg := range sub.Channel() {
		st, ok := msg.Payload.(*types.NetifStatus)
		if !ok {
			continue
		}
		println("status: link="+st.Link, "hw="+st.Hardware, "ip="+st.IP, "event="+st.LastEvent)
	}
}

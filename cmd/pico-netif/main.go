// Command pico-netif: network interface bring-up for RP2040/Pico with a
// WIZnet W5x00 board on SPI0.
//
// Build/flash (TinyGo):
//
//	tinygo flash -target pico ./cmd/pico-netif
//
// Wiring assumptions (edit the constants as needed):
// - SPI0 on Pico defaults: SCK=GP18, SDO=GP19, SDI=GP16.
// - Chip select on GP17, asserted low.
// - Console on UART0: TX=GP0, RX=GP1 @ 115200.

//go:build rp2040

package main

import (
	"context"
	"machine"
	"net/netip"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"netif-go/bus"
	"netif-go/drivers/w5x00"
	"netif-go/services/netif"
	"netif-go/spibus"
	"netif-go/types"
)

const (
	pinSCK = machine.Pin(18)
	pinSDO = machine.Pin(19)
	pinSDI = machine.Pin(16)
	pinCS  = machine.Pin(17)

	consoleBaud = 115200
)

var (
	boardMAC = [6]byte{0xDE, 0xAD, 0xBE, 0xEF, 0xFE, 0xED}
	staticIP = netip.AddrFrom4([4]byte{192, 168, 4, 20})
)

func main() {
	time.Sleep(3 * time.Second)

	console := uartx.UART0
	_ = console.Configure(uartx.UARTConfig{
		BaudRate: consoleBaud,
		TX:       machine.Pin(0),
		RX:       machine.Pin(1),
	})
	logln(console, "== pico-netif: W5x00 bring-up ==")

	// SPI0 at the chip family's parameters. The shared-bus hook reprograms
	// the controller if a later bus user asks for different settings.
	spiCfg := machine.SPIConfig{
		Frequency: 14_000_000,
		Mode:      0,
		SCK:       pinSCK,
		SDO:       pinSDO,
		SDI:       pinSDI,
	}
	_ = machine.SPI0.Configure(spiCfg)
	shared := spibus.NewShared(machine.SPI0)
	shared.OnConfigure(func(s spibus.Settings) {
		spiCfg.Frequency = s.Frequency
		spiCfg.Mode = s.Mode
		spiCfg.LSBFirst = s.Order == spibus.LSBFirst
		_ = machine.SPI0.Configure(spiCfg)
	})

	pinCS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinCS.High()

	dev := w5x00.New(shared, pinCS.Set)
	ctrl := netif.New(netif.Config{Bus: shared, Driver: dev})

	if err := ctrl.BeginStatic(boardMAC, staticIP); err != nil {
		logln(console, "Error: bring-up failed: "+err.Error())
		halt()
	}
	logln(console, "Info: interface up, chip "+ctrl.HardwareStatus().String())

	// Bus, service, and a console monitor on the status topic.
	b := bus.NewBus(8)
	svc := netif.NewService(ctrl, time.Second)
	if err := svc.Start(context.Background(), b.NewConnection("netif")); err != nil {
		logln(console, "Error: service: "+err.Error())
		halt()
	}

	mon := b.NewConnection("console")
	sub := mon.Subscribe(bus.Topic{"netif", "status"})
	for msg := range sub.Channel() {
		st, ok := msg.Payload.(*types.NetifStatus)
		if !ok {
			continue
		}
		logln(console, "status: link="+st.Link+" ip="+st.IP+" event="+st.LastEvent)
	}
}

func logln(u *uartx.UART, s string) {
	_, _ = u.Write([]byte(s))
	_, _ = u.Write([]byte("\r\n"))
}

func halt() {
	for {
		time.Sleep(time.Second)
	}
}

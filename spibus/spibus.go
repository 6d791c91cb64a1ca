// Package spibus models a shared SPI command bus with scoped, exclusive
// transactions. Several peripherals (and their drivers) may sit on the same
// physical bus; every multi-register sequence against one chip must run
// inside a single transaction so another bus user cannot interleave.
package spibus

import (
	"sync"

	"tinygo.org/x/drivers"
)

// BitOrder of the bus clocking.
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// Settings selects the bus parameters for one transaction. Each chip family
// declares its own fixed Settings value.
type Settings struct {
	Frequency uint32 // Hz
	Mode      uint8  // SPI mode 0..3
	Order     BitOrder
}

// Bus is a shared command bus. BeginTransaction blocks until the caller has
// exclusive use of the bus; EndTransaction releases it. The embedded
// drivers.SPI surface is only valid between Begin and End.
type Bus interface {
	drivers.SPI
	BeginTransaction(Settings)
	EndTransaction()
}

// Txn is a scoped transaction on a Bus. Acquire with Begin, release with End,
// typically via defer so every exit path releases the bus.
type Txn struct {
	bus Bus
}

// Begin acquires the bus for exclusive use with the given settings.
func Begin(b Bus, s Settings) Txn {
	b.BeginTransaction(s)
	return Txn{bus: b}
}

// End releases the bus. End on a zero Txn is a no-op.
func (t Txn) End() {
	if t.bus != nil {
		t.bus.EndTransaction()
	}
}

// -----------------------------------------------------------------------------
// SharedBus
// -----------------------------------------------------------------------------

// SharedBus wraps a raw SPI peripheral with a mutex so independent users can
// share it. A transaction may block briefly while another holder finishes;
// the bound is the holder's own transaction length, no timeout is applied.
type SharedBus struct {
	spi drivers.SPI
	mu  sync.Mutex

	configure func(Settings) // optional reconfigure hook, applied on Begin
	current   Settings
}

// NewShared builds a SharedBus over a raw SPI peripheral.
func NewShared(spi drivers.SPI) *SharedBus {
	return &SharedBus{spi: spi}
}

// OnConfigure registers a hook invoked when a transaction begins with
// settings that differ from the previous transaction. Platform code uses it
// to reprogram the controller's frequency/mode for the next chip.
func (b *SharedBus) OnConfigure(f func(Settings)) { b.configure = f }

func (b *SharedBus) BeginTransaction(s Settings) {
	b.mu.Lock()
	if b.configure != nil && s != b.current {
		b.configure(s)
		b.current = s
	}
}

func (b *SharedBus) EndTransaction() {
	b.mu.Unlock()
}

func (b *SharedBus) Tx(w, r []byte) error {
	return b.spi.Tx(w, r)
}

func (b *SharedBus) Transfer(w byte) (byte, error) {
	return b.spi.Transfer(w)
}

var _ Bus = (*SharedBus)(nil)

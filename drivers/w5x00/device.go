// Package w5x00 is a register-level driver for the WIZnet W5100/W5200/W5500
// Ethernet controllers. It covers chip detection and reset plus the common
// register block (hardware address, IP configuration, retransmission
// parameters, PHY link state). Socket buffers and the on-chip TCP/UDP engine
// are not handled here.
//
// The driver issues raw SPI frames only; callers own chip-select timing at
// the transaction level and must hold the shared bus (see package spibus)
// around every logical register sequence.
package w5x00

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"netif-go/spibus"
)

var ErrNoHardware = errors.New("w5x00: no hardware detected")

// PinOutput drives the chip-select line. Asserted low.
type PinOutput func(high bool)

// Device represents one W5x00 chip on an SPI bus.
type Device struct {
	spi  drivers.SPI
	cs   PinOutput
	chip Chip

	// Fixed buffers to avoid per-call heap allocations.
	hdr [4]byte
	buf [6]byte
}

// New constructs a Device. cs may be nil if chip select is handled
// externally (e.g. hardware CS or a test harness).
func New(spi drivers.SPI, cs PinOutput) *Device {
	if cs == nil {
		cs = func(bool) {}
	}
	return &Device{spi: spi, cs: cs, chip: ChipNone}
}

// BusSettings returns the fixed bus parameters for this chip family:
// 14 MHz, SPI mode 0, MSB first.
func (d *Device) BusSettings() spibus.Settings {
	return spibus.Settings{Frequency: 14_000_000, Mode: 0, Order: spibus.MSBFirst}
}

// Init probes for a supported chip and soft-resets it. Returns ErrNoHardware
// if no chip in the family answers. Safe to call repeatedly.
func (d *Device) Init() error {
	// Let the chip come out of power-on reset before the first access.
	time.Sleep(560 * time.Microsecond)

	// Probe order follows the original family driver: W5100 boards are the
	// most common, W5500 last.
	if d.isW5100() || d.isW5200() || d.isW5500() {
		return nil
	}
	d.chip = ChipNone
	return ErrNoHardware
}

// Identity returns the raw chip-identity code established by Init
// (51, 52, 55, or 0 when detection failed). No bus access.
func (d *Device) Identity() uint8 { return uint8(d.chip) }

// -----------------------------------------------------------------------------
// Chip detection
// -----------------------------------------------------------------------------

func (d *Device) softReset() bool {
	if d.writeByte(regMR, mrRST) != nil {
		return false
	}
	// RST self-clears once the internal reset completes.
	for i := 0; i < 20; i++ {
		v, err := d.readByte(regMR)
		if err == nil && v == 0 {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// mrProbe writes a mode-register pattern and checks it reads back.
func (d *Device) mrProbe(pattern byte) bool {
	if d.writeByte(regMR, pattern) != nil {
		return false
	}
	v, err := d.readByte(regMR)
	return err == nil && v == pattern
}

func (d *Device) isW5100() bool {
	d.chip = ChipW5100
	if !d.softReset() {
		return false
	}
	if !d.mrProbe(0x10) || !d.mrProbe(0x12) || !d.mrProbe(0x00) {
		return false
	}
	return true
}

func (d *Device) isW5200() bool {
	d.chip = ChipW5200
	if !d.softReset() {
		return false
	}
	if !d.mrProbe(0x08) || !d.mrProbe(0x10) || !d.mrProbe(0x00) {
		return false
	}
	v, err := d.readByte(regVERSIONR5200)
	return err == nil && v == 3
}

func (d *Device) isW5500() bool {
	d.chip = ChipW5500
	if !d.softReset() {
		return false
	}
	if !d.mrProbe(0x08) || !d.mrProbe(0x10) || !d.mrProbe(0x00) {
		return false
	}
	v, err := d.readByte(regVERSIONR5500)
	return err == nil && v == 4
}

// -----------------------------------------------------------------------------
// Address registers
// -----------------------------------------------------------------------------

func (d *Device) SetHardwareAddress(mac [6]byte) error {
	copy(d.buf[:], mac[:])
	return d.write(regSHAR, d.buf[:6])
}

func (d *Device) HardwareAddress() ([6]byte, error) {
	var mac [6]byte
	err := d.read(regSHAR, mac[:])
	return mac, err
}

func (d *Device) SetLocalAddress(ip [4]byte) error {
	copy(d.buf[:], ip[:])
	return d.write(regSIPR, d.buf[:4])
}

func (d *Device) LocalAddress() ([4]byte, error) {
	var ip [4]byte
	err := d.read(regSIPR, ip[:])
	return ip, err
}

func (d *Device) SetGatewayAddress(ip [4]byte) error {
	copy(d.buf[:], ip[:])
	return d.write(regGAR, d.buf[:4])
}

func (d *Device) GatewayAddress() ([4]byte, error) {
	var ip [4]byte
	err := d.read(regGAR, ip[:])
	return ip, err
}

func (d *Device) SetSubnetMask(ip [4]byte) error {
	copy(d.buf[:], ip[:])
	return d.write(regSUBR, d.buf[:4])
}

func (d *Device) SubnetMask() ([4]byte, error) {
	var ip [4]byte
	err := d.read(regSUBR, ip[:])
	return ip, err
}

// -----------------------------------------------------------------------------
// Retransmission parameters
// -----------------------------------------------------------------------------

// SetRetransmissionTime writes the retry timer in the chip's native 100 µs
// units. Callers convert from milliseconds (and clamp) before calling.
func (d *Device) SetRetransmissionTime(units uint16) error {
	d.buf[0] = byte(units >> 8)
	d.buf[1] = byte(units)
	return d.write(d.rtrAddr(), d.buf[:2])
}

func (d *Device) SetRetransmissionCount(n uint8) error {
	return d.writeByte(d.rcrAddr(), n)
}

func (d *Device) rtrAddr() uint16 {
	if d.chip == ChipW5500 {
		return regRTR5500
	}
	return regRTR
}

func (d *Device) rcrAddr() uint16 {
	if d.chip == ChipW5500 {
		return regRCR5500
	}
	return regRCR
}

// -----------------------------------------------------------------------------
// Link state
// -----------------------------------------------------------------------------

// LinkState reads the PHY link indication. The W5100 has no PHY status
// register, so it always reports LinkRawUnknown.
func (d *Device) LinkState() (uint8, error) {
	switch d.chip {
	case ChipW5200:
		v, err := d.readByte(regPHYSTATUS5200)
		if err != nil {
			return LinkRawUnknown, err
		}
		if v&phy5200Link != 0 {
			return LinkRawOn, nil
		}
		return LinkRawOff, nil
	case ChipW5500:
		v, err := d.readByte(regPHYCFGR5500)
		if err != nil {
			return LinkRawUnknown, err
		}
		if v&phy5500Link != 0 {
			return LinkRawOn, nil
		}
		return LinkRawOff, nil
	default:
		return LinkRawUnknown, nil
	}
}

// -----------------------------------------------------------------------------
// Low-level SPI framing
// -----------------------------------------------------------------------------

// write stores buf at addr using the detected chip's frame format.
func (d *Device) write(addr uint16, buf []byte) error {
	switch d.chip {
	case ChipW5500:
		d.cs(false)
		d.hdr[0] = byte(addr >> 8)
		d.hdr[1] = byte(addr)
		d.hdr[2] = ctl5500Write
		if err := d.spi.Tx(d.hdr[:3], nil); err != nil {
			d.cs(true)
			return err
		}
		err := d.spi.Tx(buf, nil)
		d.cs(true)
		return err
	case ChipW5200:
		d.cs(false)
		d.hdr[0] = byte(addr >> 8)
		d.hdr[1] = byte(addr)
		d.hdr[2] = ctl5200Write | byte(len(buf)>>8)
		d.hdr[3] = byte(len(buf))
		if err := d.spi.Tx(d.hdr[:4], nil); err != nil {
			d.cs(true)
			return err
		}
		err := d.spi.Tx(buf, nil)
		d.cs(true)
		return err
	default:
		// W5100: one 4-byte frame per data byte.
		for i, b := range buf {
			a := addr + uint16(i)
			d.hdr[0] = op5100Write
			d.hdr[1] = byte(a >> 8)
			d.hdr[2] = byte(a)
			d.hdr[3] = b
			d.cs(false)
			err := d.spi.Tx(d.hdr[:4], nil)
			d.cs(true)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// read fills buf from addr using the detected chip's frame format.
func (d *Device) read(addr uint16, buf []byte) error {
	switch d.chip {
	case ChipW5500:
		d.cs(false)
		d.hdr[0] = byte(addr >> 8)
		d.hdr[1] = byte(addr)
		d.hdr[2] = ctl5500Read
		if err := d.spi.Tx(d.hdr[:3], nil); err != nil {
			d.cs(true)
			return err
		}
		err := d.spi.Tx(nil, buf)
		d.cs(true)
		return err
	case ChipW5200:
		d.cs(false)
		d.hdr[0] = byte(addr >> 8)
		d.hdr[1] = byte(addr)
		d.hdr[2] = byte(len(buf) >> 8)
		d.hdr[3] = byte(len(buf))
		if err := d.spi.Tx(d.hdr[:4], nil); err != nil {
			d.cs(true)
			return err
		}
		err := d.spi.Tx(nil, buf)
		d.cs(true)
		return err
	default:
		var frame [4]byte
		for i := range buf {
			a := addr + uint16(i)
			d.hdr[0] = op5100Read
			d.hdr[1] = byte(a >> 8)
			d.hdr[2] = byte(a)
			d.hdr[3] = 0
			d.cs(false)
			err := d.spi.Tx(d.hdr[:4], frame[:4])
			d.cs(true)
			if err != nil {
				return err
			}
			buf[i] = frame[3]
		}
		return nil
	}
}

func (d *Device) writeByte(addr uint16, v byte) error {
	d.buf[0] = v
	return d.write(addr, d.buf[:1])
}

func (d *Device) readByte(addr uint16) (byte, error) {
	var b [1]byte
	err := d.read(addr, b[:])
	return b[0], err
}

// services/netif/types.go
package netif

import (
	"net/netip"
	"time"

	"netif-go/spibus"
)

// Driver is the register-level access surface of the network chip. The
// controller treats it as opaque: it never reaches past these primitives.
// Implementations must not touch the bus outside a call; the controller
// wraps every call sequence in one spibus transaction.
type Driver interface {
	// Init probes and resets the chip. It reports hardware absence with an
	// error; any state already configured is left untouched on failure.
	Init() error

	// BusSettings returns the fixed bus parameters for this chip family.
	BusSettings() spibus.Settings

	// Identity returns the raw chip-identity code established by Init.
	// No bus access. 0 means nothing was detected.
	Identity() uint8

	// LinkState returns the raw link-state code (0 unknown, 1 up, 2 down).
	LinkState() (uint8, error)

	SetHardwareAddress(mac [6]byte) error
	HardwareAddress() ([6]byte, error)
	SetLocalAddress(ip [4]byte) error
	LocalAddress() ([4]byte, error)
	SetGatewayAddress(ip [4]byte) error
	GatewayAddress() ([4]byte, error)
	SetSubnetMask(mask [4]byte) error
	SubnetMask() ([4]byte, error)

	// SetRetransmissionTime takes the chip's native 100 µs units.
	SetRetransmissionTime(units uint16) error
	SetRetransmissionCount(n uint8) error
}

// LeaseClient is the dynamic address-negotiation engine. The controller owns
// exactly one instance, created lazily on the first BeginDHCP and kept for
// the controller's lifetime.
type LeaseClient interface {
	// Negotiate acquires a lease. It is the single operation in this
	// package allowed to block, bounded by timeout overall and
	// responseTimeout per round-trip.
	Negotiate(mac [6]byte, timeout, responseTimeout time.Duration) error

	// CheckLease advances the renew/rebind state machine without blocking.
	CheckLease() LeaseEvent

	LocalAddr() netip.Addr
	GatewayAddr() netip.Addr
	SubnetMask() netip.Addr
	DNSAddr() netip.Addr
}

// LeaseEvent is the outcome of one maintenance poll.
type LeaseEvent uint8

const (
	LeaseNone LeaseEvent = iota
	LeaseRenewFailed
	LeaseRenewOK
	LeaseRebindFailed
	LeaseRebindOK
)

func (e LeaseEvent) String() string {
	switch e {
	case LeaseNone:
		return "none"
	case LeaseRenewFailed:
		return "renew_failed"
	case LeaseRenewOK:
		return "renew_ok"
	case LeaseRebindFailed:
		return "rebind_failed"
	case LeaseRebindOK:
		return "rebind_ok"
	default:
		return "none"
	}
}

// LinkStatus is the mapped PHY link state.
type LinkStatus uint8

const (
	LinkUnknown LinkStatus = iota
	LinkOn
	LinkOff
)

func (s LinkStatus) String() string {
	switch s {
	case LinkOn:
		return "on"
	case LinkOff:
		return "off"
	default:
		return "unknown"
	}
}

// HardwareStatus identifies the detected chip variant.
type HardwareStatus uint8

const (
	HardwareNone HardwareStatus = iota
	HardwareW5100
	HardwareW5200
	HardwareW5500
)

func (s HardwareStatus) String() string {
	switch s {
	case HardwareW5100:
		return "w5100"
	case HardwareW5200:
		return "w5200"
	case HardwareW5500:
		return "w5500"
	default:
		return "none"
	}
}

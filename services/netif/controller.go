// services/netif/controller.go
package netif

import (
	"errors"
	"net/netip"
	"time"

	"netif-go/spibus"
	"netif-go/x/mathx"
	"netif-go/x/timex"
)

var ErrNoLeaseClient = errors.New("netif: no lease client configured")

// Config wires a Controller to its collaborators. Bus and Driver are
// required; NewLeaseClient is only needed for dynamic configuration.
type Config struct {
	Bus    spibus.Bus
	Driver Driver

	// NewLeaseClient constructs the lease client on the first BeginDHCP
	// call. It is invoked at most once per controller.
	NewLeaseClient func() LeaseClient
}

// Controller sequences chip initialisation, address assignment and lease
// maintenance for one network interface. It is single-threaded by contract:
// the caller polls it from its own loop, and only BeginDHCP blocks.
type Controller struct {
	bus      spibus.Bus
	settings spibus.Settings
	drv      Driver

	newLease func() LeaseClient
	lease    LeaseClient // created lazily, lives as long as the controller

	dns       netip.Addr // cached: the chip has no resolver register
	portState uint32
}

func New(cfg Config) *Controller {
	return &Controller{
		bus:      cfg.Bus,
		settings: cfg.Driver.BusSettings(),
		drv:      cfg.Driver,
		newLease: cfg.NewLeaseClient,
	}
}

// withBus runs f inside one exclusive bus transaction. Every register
// sequence of a logical operation goes through exactly one of these, and
// the deferred End releases the bus on all exit paths.
func (c *Controller) withBus(f func() error) error {
	txn := spibus.Begin(c.bus, c.settings)
	defer txn.End()
	return f()
}

// -----------------------------------------------------------------------------
// Initialisation
// -----------------------------------------------------------------------------

// BeginDHCP initialises the chip and acquires an address lease. The lease
// client's negotiation is the only blocking call in this package, bounded by
// timeout (overall) and responseTimeout (per round-trip). The negotiation
// error is returned unmodified; the controller does not reinterpret it.
func (c *Controller) BeginDHCP(mac [6]byte, timeout, responseTimeout time.Duration) error {
	if c.lease == nil {
		if c.newLease == nil {
			return ErrNoLeaseClient
		}
		c.lease = c.newLease()
	}

	// Probe and address reset share the first transaction; Init's own SPI
	// traffic must hold the bus like any other register sequence.
	err := c.withBus(func() error {
		if err := c.drv.Init(); err != nil {
			return err
		}
		if err := c.drv.SetHardwareAddress(mac); err != nil {
			return err
		}
		// Unspecified until the lease lands.
		return c.drv.SetLocalAddress([4]byte{})
	})
	if err != nil {
		return err
	}

	if err := c.lease.Negotiate(mac, timeout, responseTimeout); err != nil {
		return err
	}
	if err := c.commitLease(); err != nil {
		return err
	}
	c.seedSourcePorts(uint32(timex.NowMicros()))
	return nil
}

// BeginStatic configures a static address, deriving resolver, gateway and
// subnet from ip.
func (c *Controller) BeginStatic(mac [6]byte, ip netip.Addr) error {
	return c.BeginStaticDNS(mac, ip, withLastOctetOne(ip))
}

// BeginStaticDNS additionally takes the resolver address and derives the
// gateway and subnet.
func (c *Controller) BeginStaticDNS(mac [6]byte, ip, dns netip.Addr) error {
	return c.BeginStaticGateway(mac, ip, dns, withLastOctetOne(ip))
}

// BeginStaticGateway additionally takes the gateway and derives the subnet.
func (c *Controller) BeginStaticGateway(mac [6]byte, ip, dns, gateway netip.Addr) error {
	return c.BeginStaticFull(mac, ip, dns, gateway, defaultSubnetMask())
}

// BeginStaticFull configures the full static address set. Nothing is
// derived here and the lease client is never created or touched.
func (c *Controller) BeginStaticFull(mac [6]byte, ip, dns, gateway, subnet netip.Addr) error {
	err := c.withBus(func() error {
		if err := c.drv.Init(); err != nil {
			return err
		}
		if err := c.drv.SetHardwareAddress(mac); err != nil {
			return err
		}
		if err := c.drv.SetLocalAddress(as4(ip)); err != nil {
			return err
		}
		if err := c.drv.SetGatewayAddress(as4(gateway)); err != nil {
			return err
		}
		return c.drv.SetSubnetMask(as4(subnet))
	})
	if err != nil {
		return err
	}
	c.dns = dns
	return nil
}

// commitLease copies the lease client's current address set into the chip
// (one transaction) and refreshes the resolver cache.
func (c *Controller) commitLease() error {
	err := c.withBus(func() error {
		if err := c.drv.SetLocalAddress(as4(c.lease.LocalAddr())); err != nil {
			return err
		}
		if err := c.drv.SetGatewayAddress(as4(c.lease.GatewayAddr())); err != nil {
			return err
		}
		return c.drv.SetSubnetMask(as4(c.lease.SubnetMask()))
	})
	if err != nil {
		return err
	}
	c.dns = c.lease.DNSAddr()
	return nil
}

// -----------------------------------------------------------------------------
// Lease maintenance
// -----------------------------------------------------------------------------

// Maintain advances lease renewal. Without a lease client it returns
// LeaseNone and touches no hardware. On a renew/rebind success the changed
// address set is written to the chip in one transaction; failures are
// reported and left for the caller's next poll. Maintain never blocks.
func (c *Controller) Maintain() (LeaseEvent, error) {
	if c.lease == nil {
		return LeaseNone, nil
	}
	ev := c.lease.CheckLease()
	switch ev {
	case LeaseRenewOK, LeaseRebindOK:
		if err := c.commitLease(); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

// -----------------------------------------------------------------------------
// Address and parameter access
// -----------------------------------------------------------------------------

// The getters are always live reads from the chip; nothing is cached except
// the resolver address. The setters shadow whatever is in the chip without
// consulting the lease client, so a static override after a DHCP lease is
// legal but may be silently overwritten by a later successful renew/rebind.

func (c *Controller) HardwareAddress() ([6]byte, error) {
	var mac [6]byte
	err := c.withBus(func() error {
		var e error
		mac, e = c.drv.HardwareAddress()
		return e
	})
	return mac, err
}

func (c *Controller) SetHardwareAddress(mac [6]byte) error {
	return c.withBus(func() error { return c.drv.SetHardwareAddress(mac) })
}

func (c *Controller) LocalAddress() (netip.Addr, error) {
	var ip [4]byte
	err := c.withBus(func() error {
		var e error
		ip, e = c.drv.LocalAddress()
		return e
	})
	return netip.AddrFrom4(ip), err
}

func (c *Controller) SetLocalAddress(ip netip.Addr) error {
	return c.withBus(func() error { return c.drv.SetLocalAddress(as4(ip)) })
}

func (c *Controller) SubnetMask() (netip.Addr, error) {
	var mask [4]byte
	err := c.withBus(func() error {
		var e error
		mask, e = c.drv.SubnetMask()
		return e
	})
	return netip.AddrFrom4(mask), err
}

func (c *Controller) SetSubnetMask(mask netip.Addr) error {
	return c.withBus(func() error { return c.drv.SetSubnetMask(as4(mask)) })
}

func (c *Controller) GatewayAddress() (netip.Addr, error) {
	var ip [4]byte
	err := c.withBus(func() error {
		var e error
		ip, e = c.drv.GatewayAddress()
		return e
	})
	return netip.AddrFrom4(ip), err
}

func (c *Controller) SetGatewayAddress(ip netip.Addr) error {
	return c.withBus(func() error { return c.drv.SetGatewayAddress(as4(ip)) })
}

// DNSServerAddress returns the cached resolver address. The chip has no
// register for it, so this is the one accessor that is not a live read.
func (c *Controller) DNSServerAddress() netip.Addr { return c.dns }

func (c *Controller) SetDNSServerAddress(ip netip.Addr) { c.dns = ip }

// SetRetransmissionTimeout sets the chip's retry timer from milliseconds.
// Values above 6553 ms are clamped so the scaled value fits the register.
func (c *Controller) SetRetransmissionTimeout(ms uint16) error {
	ms = mathx.Clamp(ms, 0, 6553)
	return c.withBus(func() error { return c.drv.SetRetransmissionTime(ms * 10) })
}

func (c *Controller) SetRetransmissionCount(n uint8) error {
	return c.withBus(func() error { return c.drv.SetRetransmissionCount(n) })
}

// -----------------------------------------------------------------------------
// Status queries
// -----------------------------------------------------------------------------

// LinkStatus maps the chip's raw link code onto the closed LinkStatus set.
// Read errors and unrecognised codes both report LinkUnknown.
func (c *Controller) LinkStatus() LinkStatus {
	var raw uint8
	err := c.withBus(func() error {
		var e error
		raw, e = c.drv.LinkState()
		return e
	})
	if err != nil {
		return LinkUnknown
	}
	switch raw {
	case 1:
		return LinkOn
	case 2:
		return LinkOff
	default:
		return LinkUnknown
	}
}

// HardwareStatus maps the raw chip-identity code onto the named variants.
// Unrecognised codes report HardwareNone; that is an identity answer, not
// an initialisation failure.
func (c *Controller) HardwareStatus() HardwareStatus {
	switch c.drv.Identity() {
	case 51:
		return HardwareW5100
	case 52:
		return HardwareW5200
	case 55:
		return HardwareW5500
	default:
		return HardwareNone
	}
}

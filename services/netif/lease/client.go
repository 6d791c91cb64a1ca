// Package lease adapts the seqs embedded DHCP client to the controller's
// LeaseClient contract: a blocking initial negotiation plus a polled,
// non-blocking renew/rebind lifecycle.
package lease

import (
	"net/netip"
	"time"

	"github.com/soypat/seqs/eth/dhcp"
	"github.com/soypat/seqs/stacks"

	"netif-go/errcode"
	"netif-go/services/netif"
	"netif-go/x/timex"
)

// ErrNegotiateTimeout reports that no lease was bound within the caller's
// time budget.
var ErrNegotiateTimeout error = &errcode.E{C: errcode.LeaseTimeout, Op: "lease.Negotiate"}

const (
	defaultPoll           = 50 * time.Millisecond
	defaultAttemptTimeout = 5 * time.Second
	defaultLeaseTime      = time.Hour
)

// requester is the slice of stacks.DHCPClient the lifecycle logic needs.
// Kept as an interface so tests can script the protocol engine.
type requester interface {
	BeginRequest(stacks.DHCPRequestConfig) error
	State() dhcp.ClientState
	Abort()
	Offer() netip.Addr
	Router() netip.Addr
	CIDRBits() uint8
	DNSServers() []netip.Addr
	RenewalTime() time.Duration
	RebindingTime() time.Duration
	IPLeaseTime() time.Duration
}

// Client drives address negotiation and renewal over a seqs port stack.
// It is single-threaded like its caller: Negotiate blocks, CheckLease never
// does.
type Client struct {
	dc       requester
	hostname string

	now            func() time.Time
	poll           time.Duration // State() poll granularity during Negotiate
	attemptTimeout time.Duration // per renew/rebind attempt

	// Current lease.
	bound    bool
	ip       netip.Addr
	gw       netip.Addr
	mask     netip.Addr
	dns      netip.Addr
	boundAt  time.Time
	renewAt  time.Time // T1
	rebindAt time.Time // T2
	expireAt time.Time

	// In-flight renew/rebind attempt. pending holds the success event the
	// attempt is aiming for; LeaseNone when idle.
	pending      netif.LeaseEvent
	pendingSince time.Time

	xid uint32
}

var _ netif.LeaseClient = (*Client)(nil)

// NewClient builds a lease client on top of an already-running port stack.
// The stack must keep handling ethernet frames while Negotiate and
// CheckLease run.
func NewClient(stack *stacks.PortStack, hostname string) *Client {
	return &Client{
		dc:             stacks.NewDHCPClient(stack, dhcp.DefaultClientPort),
		hostname:       hostname,
		now:            time.Now,
		poll:           defaultPoll,
		attemptTimeout: defaultAttemptTimeout,
	}
}

// Negotiate acquires a lease, blocking up to timeout overall and issuing a
// fresh request every responseTimeout until one binds. mac seasons the
// transaction id; the stack already owns the hardware address itself.
func (c *Client) Negotiate(mac [6]byte, timeout, responseTimeout time.Duration) error {
	if responseTimeout <= 0 || responseTimeout > timeout {
		responseTimeout = timeout
	}
	deadline := c.now().Add(timeout)
	for {
		c.dc.Abort()
		c.xid = nextXid(mac)
		err := c.dc.BeginRequest(stacks.DHCPRequestConfig{
			RequestedAddr: c.ip,
			Xid:           c.xid,
			Hostname:      c.hostname,
		})
		if err != nil {
			return &errcode.E{C: errcode.LeaseFailed, Op: "lease.Negotiate", Err: err}
		}

		attempt := c.now().Add(responseTimeout)
		if attempt.After(deadline) {
			attempt = deadline
		}
		for c.dc.State() != dhcp.StateBound && c.now().Before(attempt) {
			time.Sleep(c.poll)
		}
		if c.dc.State() == dhcp.StateBound {
			c.capture()
			return nil
		}
		if !c.now().Before(deadline) {
			c.dc.Abort()
			return ErrNegotiateTimeout
		}
	}
}

// CheckLease advances the renew/rebind state machine by one non-blocking
// step. It reports a renew/rebind outcome at most once per attempt; all
// other polls return LeaseNone.
func (c *Client) CheckLease() netif.LeaseEvent {
	if !c.bound {
		return netif.LeaseNone
	}
	now := c.now()

	if c.pending != netif.LeaseNone {
		if c.dc.State() == dhcp.StateBound {
			ev := c.pending
			c.capture()
			return ev
		}
		if now.Sub(c.pendingSince) > c.attemptTimeout {
			c.dc.Abort()
			ev := failureOf(c.pending)
			c.pending = netif.LeaseNone
			return ev
		}
		return netif.LeaseNone
	}

	if now.Before(c.renewAt) {
		return netif.LeaseNone
	}
	target := netif.LeaseRenewOK
	if !now.Before(c.rebindAt) {
		target = netif.LeaseRebindOK
	}
	c.dc.Abort()
	c.xid++
	err := c.dc.BeginRequest(stacks.DHCPRequestConfig{
		RequestedAddr: c.ip,
		Xid:           c.xid,
		Hostname:      c.hostname,
	})
	if err != nil {
		return failureOf(target)
	}
	c.pending = target
	c.pendingSince = now
	return netif.LeaseNone
}

func (c *Client) LocalAddr() netip.Addr   { return c.ip }
func (c *Client) GatewayAddr() netip.Addr { return c.gw }
func (c *Client) SubnetMask() netip.Addr  { return c.mask }
func (c *Client) DNSAddr() netip.Addr     { return c.dns }

// Expired reports whether the lease ran out without a successful rebind.
func (c *Client) Expired() bool {
	return c.bound && !c.now().Before(c.expireAt)
}

// capture copies the bound lease out of the protocol engine and schedules
// T1/T2/expiry. Missing server-supplied timers fall back to the customary
// 1/2 and 7/8 fractions of the lease time.
func (c *Client) capture() {
	now := c.now()
	c.ip = c.dc.Offer()
	c.gw = c.dc.Router()
	c.mask = maskFromBits(c.dc.CIDRBits())
	c.dns = netip.Addr{}
	if servers := c.dc.DNSServers(); len(servers) > 0 {
		c.dns = servers[0]
	}

	leaseTime := c.dc.IPLeaseTime()
	if leaseTime <= 0 {
		leaseTime = defaultLeaseTime
	}
	t1 := c.dc.RenewalTime()
	if t1 <= 0 {
		t1 = leaseTime / 2
	}
	t2 := c.dc.RebindingTime()
	if t2 <= 0 {
		t2 = leaseTime * 7 / 8
	}

	c.boundAt = now
	c.renewAt = now.Add(t1)
	c.rebindAt = now.Add(t2)
	c.expireAt = now.Add(leaseTime)
	c.bound = true
	c.pending = netif.LeaseNone
}

func failureOf(target netif.LeaseEvent) netif.LeaseEvent {
	if target == netif.LeaseRebindOK {
		return netif.LeaseRebindFailed
	}
	return netif.LeaseRenewFailed
}

// maskFromBits expands a CIDR prefix length into a dotted mask. Out-of-range
// values fall back to the class-C default rather than a zero mask.
func maskFromBits(bits uint8) netip.Addr {
	if bits == 0 || bits > 32 {
		return netip.AddrFrom4([4]byte{255, 255, 255, 0})
	}
	v := ^uint32(0) << (32 - bits)
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func nextXid(mac [6]byte) uint32 {
	x := uint32(timex.NowMicros())
	x ^= uint32(mac[2])<<24 | uint32(mac[3])<<16 | uint32(mac[4])<<8 | uint32(mac[5])
	if x == 0 {
		x = 1
	}
	return x
}

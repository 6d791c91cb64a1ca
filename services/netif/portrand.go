// services/netif/portrand.go
package netif

// Ephemeral source-port selection for transport code built on top of the
// configured interface. BeginDHCP seeds the generator from a time-based
// entropy source so sequential boots do not reuse the same port sequence.

const (
	portRangeStart = 49152
	portRangeLen   = 16384
)

func (c *Controller) seedSourcePorts(seed uint32) {
	if seed == 0 {
		seed = 1 // xorshift must not start at zero
	}
	c.portState = seed
}

// SourcePort returns the next ephemeral source port in the dynamic range.
func (c *Controller) SourcePort() uint16 {
	s := c.portState
	if s == 0 {
		s = 1
	}
	// xorshift32
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	c.portState = s
	return uint16(portRangeStart + s%portRangeLen)
}

package types

// ------------------------
// Interface status (retained)
// ------------------------

// NetifStatus is published on the "netif/status" topic after every
// maintenance poll.
type NetifStatus struct {
	Link      string `json:"link"`     // "unknown", "on", "off"
	Hardware  string `json:"hardware"` // "none", "w5100", "w5200", "w5500"
	IP        string `json:"ip,omitempty"`
	Gateway   string `json:"gateway,omitempty"`
	Subnet    string `json:"subnet,omitempty"`
	DNS       string `json:"dns,omitempty"`
	LastEvent string `json:"last_event"` // lease maintenance outcome
	TS        int64  `json:"ts_ms"`      // publish Unix ms
}

// ------------------------
// Static configuration (bus-delivered)
// ------------------------

// StaticConfig reconfigures the interface with a static address set.
// DNS, Gateway and Subnet are optional; omitted fields are derived the same
// way as the programmatic convenience forms.
type StaticConfig struct {
	MAC     string `json:"mac"`
	IP      string `json:"ip"`
	DNS     string `json:"dns,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	Subnet  string `json:"subnet,omitempty"`
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// services/netif/service.go
package netif

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/netip"
	"time"

	"netif-go/bus"
	"netif-go/drivers/w5x00"
	"netif-go/errcode"
	"netif-go/types"
	"netif-go/x/timex"
)

var (
	topicStatus      = bus.Topic{"netif", "status"}
	topicConfigNetif = bus.Topic{"config", "netif"}
)

// Service exposes a Controller on the message bus: it polls lease
// maintenance, publishes a retained status after every poll, and accepts
// static reconfiguration on the "config/netif" topic.
type Service struct {
	ctrl     *Controller
	interval time.Duration
}

func NewService(ctrl *Controller, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{ctrl: ctrl, interval: interval}
}

// Start the netif service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	cfgSub := conn.Subscribe(topicConfigNetif)
	go s.serviceLoop(ctx, conn, cfgSub)
	return nil
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, cfgSub *bus.Subscription) {
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: netif service stopping")
			return
		case <-tick.C:
			ev, err := s.ctrl.Maintain()
			if err != nil {
				println("Warn: lease maintenance:", err.Error())
			}
			s.publishStatus(conn, ev)
		case msg := <-cfgSub.Channel():
			s.handleConfig(conn, msg)
		}
	}
}

func (s *Service) publishStatus(conn *bus.Connection, ev LeaseEvent) {
	st := &types.NetifStatus{
		Link:      s.ctrl.LinkStatus().String(),
		Hardware:  s.ctrl.HardwareStatus().String(),
		LastEvent: ev.String(),
		TS:        timex.NowMs(),
	}
	if ip, err := s.ctrl.LocalAddress(); err == nil && ip.IsValid() {
		st.IP = ip.String()
	}
	if gw, err := s.ctrl.GatewayAddress(); err == nil && gw.IsValid() {
		st.Gateway = gw.String()
	}
	if mask, err := s.ctrl.SubnetMask(); err == nil && mask.IsValid() {
		st.Subnet = mask.String()
	}
	if dns := s.ctrl.DNSServerAddress(); dns.IsValid() {
		st.DNS = dns.String()
	}
	conn.Publish(conn.NewMessage(topicStatus, st, true))
}

func (s *Service) handleConfig(conn *bus.Connection, msg *bus.Message) {
	cfg, err := decodeStaticConfig(msg.Payload)
	if err == nil {
		err = s.applyStatic(cfg)
	}
	if err != nil {
		println("Warn: netif config rejected:", err.Error())
		s.reply(conn, msg, &types.ErrorReply{OK: false, Error: string(codeFor(err))})
		return
	}
	println("Info: netif static config applied")
	s.reply(conn, msg, &types.OKReply{OK: true})
}

func (s *Service) reply(conn *bus.Connection, msg *bus.Message, payload any) {
	if msg.ReplyTo == nil {
		return
	}
	conn.Publish(conn.NewMessage(msg.ReplyTo, payload, false))
}

func decodeStaticConfig(payload any) (*types.StaticConfig, error) {
	switch v := payload.(type) {
	case *types.StaticConfig:
		return v, nil
	case []byte:
		var cfg types.StaticConfig
		if err := json.Unmarshal(v, &cfg); err != nil {
			return nil, errcode.InvalidPayload
		}
		return &cfg, nil
	case map[string]any:
		// Decoded config section, as published by the config service.
		str := func(key string) string {
			s, _ := v[key].(string)
			return s
		}
		return &types.StaticConfig{
			MAC:     str("mac"),
			IP:      str("ip"),
			DNS:     str("dns"),
			Gateway: str("gateway"),
			Subnet:  str("subnet"),
		}, nil
	default:
		return nil, errcode.InvalidPayload
	}
}

// applyStatic picks the convenience form matching the fields present, so
// bus-delivered configs share the programmatic derivation rules.
func (s *Service) applyStatic(cfg *types.StaticConfig) error {
	hw, err := net.ParseMAC(cfg.MAC)
	if err != nil || len(hw) != 6 {
		return errcode.InvalidParams
	}
	var mac [6]byte
	copy(mac[:], hw)

	ip, err := netip.ParseAddr(cfg.IP)
	if err != nil {
		return errcode.InvalidParams
	}
	if cfg.DNS == "" {
		return s.ctrl.BeginStatic(mac, ip)
	}
	dns, err := netip.ParseAddr(cfg.DNS)
	if err != nil {
		return errcode.InvalidParams
	}
	if cfg.Gateway == "" {
		return s.ctrl.BeginStaticDNS(mac, ip, dns)
	}
	gw, err := netip.ParseAddr(cfg.Gateway)
	if err != nil {
		return errcode.InvalidParams
	}
	if cfg.Subnet == "" {
		return s.ctrl.BeginStaticGateway(mac, ip, dns, gw)
	}
	mask, err := netip.ParseAddr(cfg.Subnet)
	if err != nil {
		return errcode.InvalidParams
	}
	return s.ctrl.BeginStaticFull(mac, ip, dns, gw, mask)
}

// codeFor maps controller errors to stable bus-facing codes.
func codeFor(err error) errcode.Code {
	switch {
	case err == nil:
		return errcode.OK
	case errors.Is(err, w5x00.ErrNoHardware):
		return errcode.NoHardware
	case errors.Is(err, ErrNoLeaseClient):
		return errcode.InvalidParams
	default:
		return errcode.Of(err)
	}
}

package config

import (
	"context"
	"encoding/json"
	"errors"

	"netif-go/bus"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

// ctxKey is unexported so only this package can build the context value.
type ctxKey string

const ctxDeviceKey ctxKey = "device"

// WithDevice stores the device ID the publisher should resolve configs for.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ctxDeviceKey, device)
}

// EmbeddedConfigLookup resolves the raw JSON config for a device ID. Tests
// and alternative storage backends may replace it.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig reads the device config from embedded data and publishes each
// top-level section as a retained message on config/<section>. Services pick
// up their own section (e.g. netif on config/netif) whenever they subscribe.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(ctxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for device: " + device)
	}

	var sections map[string]any
	if err := json.Unmarshal(raw, &sections); err != nil {
		return errors.New("embedded config is not a JSON object")
	}

	for k, v := range sections {
		conn.Publish(&bus.Message{
			Topic:    bus.Topic{configPrefix, k},
			Payload:  v,
			Retained: true,
		})
	}

	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("Warn: config publish failed:", err.Error())
		}
	}()
}

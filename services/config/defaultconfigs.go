package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (the value passed to WithDevice)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `{
  "netif": {
      "mac": "de:ad:be:ef:fe:ed",
      "ip": "192.168.4.20"
  },
  "heartbeat": {
      "interval": 2
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
}

package microsd

import "github.com/picofs/microsd/hal"

// SPIConfig fixes the SPI port, clock presets, wiring and pull-up
// behavior for one card. It is copied into the Card at construction and
// never reconfigured afterwards.
type SPIConfig struct {
	Port        uint8
	ClockSlowHz uint32 // initialization clock
	ClockFastHz uint32 // steady-state clock after a successful mount
	PinSCK      uint8
	PinMISO     uint8
	PinMOSI     uint8
	PinCS       uint8
	Pullup      bool // internal pull-ups on MISO and CS
}

// Clock presets. Slow is used during card initialization, fast once the
// filesystem is mounted. The compat presets are for cards and wiring
// that misbehave at the defaults.
const (
	ClockSlowDefault uint32 = 400_000
	ClockFastDefault uint32 = 40_000_000
	ClockSlowCompat  uint32 = 200_000
	ClockFastCompat  uint32 = 20_000_000
	ClockFastHigh    uint32 = 50_000_000
)

// DefaultSPIConfig returns the default wiring: SPI1, SCK on GPIO10,
// MISO on GPIO11, MOSI on GPIO12, CS on GPIO13, internal pull-ups on.
func DefaultSPIConfig() SPIConfig {
	return SPIConfig{
		Port:        1,
		ClockSlowHz: ClockSlowDefault,
		ClockFastHz: ClockFastDefault,
		PinSCK:      10,
		PinMISO:     11,
		PinMOSI:     12,
		PinCS:       13,
		Pullup:      true,
	}
}

func (c SPIConfig) halConfig() hal.Config {
	return hal.Config{
		Port:        c.Port,
		ClockSlowHz: c.ClockSlowHz,
		ClockFastHz: c.ClockFastHz,
		PinSCK:      c.PinSCK,
		PinMISO:     c.PinMISO,
		PinMOSI:     c.PinMOSI,
		PinCS:       c.PinCS,
		Pullup:      c.Pullup,
	}
}

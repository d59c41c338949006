// Package hal abstracts the SPI peripheral the SD card hangs off.
// Real pin muxing, pull-up configuration and clocking belong to the
// platform HAL; the wrapper only needs the operations below.
package hal

// Config fixes the SPI wiring and clocking for one card slot.
type Config struct {
	Port        uint8
	ClockSlowHz uint32 // initialization clock
	ClockFastHz uint32 // steady-state clock
	PinSCK      uint8
	PinMISO     uint8
	PinMOSI     uint8
	PinCS       uint8
	Pullup      bool // enable internal pull-ups on MISO and CS
}

// SPI is the peripheral controller behind a card slot. Implementations
// block; none of these calls are safe for concurrent use.
type SPI interface {
	// Configure sets pin functions and pull-ups and brings the
	// peripheral up at the slow clock.
	Configure(cfg Config) error
	// SetBaudrate changes the bus clock, typically to the fast preset
	// once the card is mounted.
	SetBaudrate(hz uint32) error
	// Reboot resets the peripheral in place. Used between mount retries
	// to recover a wedged card.
	Reboot()
	// Deinit tears the peripheral down.
	Deinit()
}

// Simulator is an SPI controller that records calls instead of touching
// hardware. Host tooling and tests use it in place of a platform HAL.
type Simulator struct {
	Config     Config
	Configured bool
	Baudrate   uint32
	Reboots    int
	Deinits    int

	// ConfigureErr, when set, is returned by Configure.
	ConfigureErr error
}

func (s *Simulator) Configure(cfg Config) error {
	if s.ConfigureErr != nil {
		return s.ConfigureErr
	}
	s.Config = cfg
	s.Configured = true
	s.Baudrate = cfg.ClockSlowHz
	return nil
}

func (s *Simulator) SetBaudrate(hz uint32) error {
	s.Baudrate = hz
	return nil
}

func (s *Simulator) Reboot() { s.Reboots++ }

func (s *Simulator) Deinit() {
	s.Deinits++
	s.Configured = false
}

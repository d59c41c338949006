package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulatorRecordsLifecycle(t *testing.T) {
	sim := &Simulator{}
	cfg := Config{Port: 1, ClockSlowHz: 400_000, ClockFastHz: 40_000_000, PinSCK: 10, Pullup: true}

	assert.NoError(t, sim.Configure(cfg))
	assert.True(t, sim.Configured)
	assert.Equal(t, cfg, sim.Config)
	assert.Equal(t, cfg.ClockSlowHz, sim.Baudrate, "bring-up uses the slow clock")

	assert.NoError(t, sim.SetBaudrate(cfg.ClockFastHz))
	assert.Equal(t, cfg.ClockFastHz, sim.Baudrate)

	sim.Reboot()
	sim.Reboot()
	assert.Equal(t, 2, sim.Reboots)

	sim.Deinit()
	assert.Equal(t, 1, sim.Deinits)
	assert.False(t, sim.Configured)
}

func TestSimulatorConfigureError(t *testing.T) {
	sim := &Simulator{ConfigureErr: assert.AnError}
	assert.Error(t, sim.Configure(Config{}))
	assert.False(t, sim.Configured)
}

package charger

import (
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/scene"
)

// Cues played on generation edges.
const (
	CueStart = "charger-start"
	CueStop  = "charger-stop"
)

// Charger is a producer variant. It announces when it starts and stops running.
type Charger struct {
	audio   scene.Audio
	running bool
}

// New returns a Charger handler. audio may be nil.
func New(audio scene.Audio) *Charger {
	return &Charger{audio: audio}
}

// Running reports the last observed running state.
func (c *Charger) Running() bool {
	return c.running
}

// OnPowerChange implements device.PowerChangeHandler
func (c *Charger) OnPowerChange(s device.State) {
	if s.Running == c.running {
		return
	}
	c.running = s.Running
	if c.audio == nil {
		return
	}
	if s.Running {
		c.audio.Play(CueStart)
	} else {
		c.audio.Play(CueStop)
	}
}

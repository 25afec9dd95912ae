package lamp

import (
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/scene"
)

// Material groups used by the lamp model.
const (
	MaterialLit     = "lit"
	MaterialDefault = "default"
)

// Lamp drives a light and a model material from the running state.
type Lamp struct {
	light    scene.Light
	material scene.Material
}

// New returns a Lamp handler. Either collaborator may be nil.
func New(light scene.Light, material scene.Material) *Lamp {
	return &Lamp{light: light, material: material}
}

// OnPowerChange implements device.PowerChangeHandler
func (l *Lamp) OnPowerChange(s device.State) {
	if l.material != nil {
		if s.Running {
			l.material.SetMaterialGroup(MaterialLit)
		} else {
			l.material.SetMaterialGroup(MaterialDefault)
		}
	}
	if l.light != nil {
		l.light.SetEnabled(s.Running)
	}
}

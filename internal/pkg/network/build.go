package network

import (
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/device/charger"
	"github.com/ohowland/powernet/internal/pkg/asset/device/lamp"
	"github.com/ohowland/powernet/internal/pkg/asset/socket"
	"github.com/ohowland/powernet/internal/pkg/config"
	"github.com/ohowland/powernet/internal/pkg/scene"
)

// Build assembles a network from a scene file. Plug objects and socket anchors are spawned in
// host; plugs configured as PluggedInto start attached. The returned Script holds the timeline.
func Build(cfg config.Scene, host scene.Host) (*Network, *Script, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	n, err := New(cfg.Name, scene.Services{Tags: host, Physics: host, Audio: host})
	if err != nil {
		return nil, nil, err
	}

	batteries := make(map[string]uuid.UUID)
	for _, c := range cfg.Batteries {
		b, err := n.AddBattery(c.Config)
		if err != nil {
			return nil, nil, err
		}
		batteries[c.Name] = b.PID()
	}

	devices := make(map[string]uuid.UUID)
	for _, c := range cfg.Devices {
		d, err := n.AddDevice(c.Config, handlerFor(c, host))
		if err != nil {
			return nil, nil, err
		}
		if c.Cue != "" {
			d.SetCue(host.Cue(c.Cue))
		}
		devices[c.Name] = d.PID()
	}

	sockets := make(map[string]uuid.UUID)
	for _, c := range cfg.Sockets {
		anchor := host.Spawn(c.Name+"-anchor", c.Anchor)
		endpoint := socket.Endpoint{Battery: batteries[c.Battery], Device: devices[c.Device]}
		s, err := n.AddSocket(c.Config, endpoint, anchor)
		if err != nil {
			return nil, nil, err
		}
		sockets[c.Name] = s.PID()
	}

	objects := make(map[string]uuid.UUID)
	for _, c := range cfg.Plugs {
		object := host.Spawn(c.Name, c.Position, scene.TagUnplugged, scene.TagSolid)
		p, err := n.AddPlug(object, c.Config)
		if err != nil {
			return nil, nil, err
		}
		endpoint := socket.Endpoint{Battery: batteries[c.Battery], Device: devices[c.Device]}
		if err := n.WirePlug(p.PID(), endpoint); err != nil {
			return nil, nil, err
		}
		objects[c.Name] = object
	}
	for _, c := range cfg.Plugs {
		if c.PluggedInto == "" {
			continue
		}
		if !n.Attach(sockets[c.PluggedInto], objects[c.Name]) {
			return nil, nil, pkgerrors.Errorf("plug %s: refused by socket %s", c.Name, c.PluggedInto)
		}
	}

	scheduled := make([]Scheduled, 0, len(cfg.Timeline))
	for _, e := range cfg.Timeline {
		s := Scheduled{At: e.Offset()}
		switch e.Kind {
		case config.EventOverlap:
			s.Event = Event{Kind: Overlap, Target: sockets[e.Socket], Object: objects[e.Plug]}
		case config.EventUnplug:
			s.Event = Event{Kind: Unplug, Target: sockets[e.Socket]}
		case config.EventToggle:
			s.Event = Event{Kind: Toggle, Target: devices[e.Device]}
		case config.EventSetActive:
			s.Event = Event{Kind: SetActive, Target: devices[e.Device], Active: e.Active}
		}
		scheduled = append(scheduled, s)
	}

	if err := n.Validate(); err != nil {
		return nil, nil, err
	}
	n.refresh()
	n.log.WithFields(logrus.Fields{
		"batteries": len(batteries),
		"devices":   len(devices),
		"plugs":     len(objects),
		"sockets":   len(sockets),
	}).Info("network built")
	return n, NewScript(scheduled), nil
}

func handlerFor(c config.Device, host scene.Host) device.PowerChangeHandler {
	switch c.Kind {
	case device.Lamp:
		var light scene.Light
		var material scene.Material
		if c.Light != "" {
			light = host.Light(c.Light)
		}
		if c.Material != "" {
			material = host.Material(c.Material)
		}
		return lamp.New(light, material)
	case device.Charger:
		return charger.New(host)
	}
	return nil
}

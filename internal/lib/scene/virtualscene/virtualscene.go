/*
virtualscene.go In-memory stand-in for the host simulation. It keeps a table of scene objects with
tags, transforms and a physics flag, and records presentation side effects, so the power network can
run headless from the CLI and in tests.
*/

package virtualscene

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ohowland/powernet/internal/pkg/scene"
)

// Vector aliases the scene vector so callers need a single import.
type Vector = scene.Vector

// Forward is the default facing of spawned objects.
var Forward = Vector{X: 1}

var _ scene.Host = &Scene{}

// Object is a snapshot of a scene object.
type Object struct {
	PID       uuid.UUID
	Name      string
	Position  Vector
	Facing    Vector
	Parent    uuid.UUID
	Simulated bool
	Tags      []string
}

type object struct {
	name      string
	position  Vector
	facing    Vector
	parent    uuid.UUID
	simulated bool
	tags      map[string]struct{}
}

// Scene is the virtual host.
type Scene struct {
	mux       *sync.RWMutex
	objects   map[uuid.UUID]*object
	played    []string
	switches  map[string]*Switch
	materials map[string]*MaterialSlot
	log       *logrus.Entry
}

// New returns an empty Scene.
func New() *Scene {
	return &Scene{
		mux:       &sync.RWMutex{},
		objects:   make(map[uuid.UUID]*object),
		switches:  make(map[string]*Switch),
		materials: make(map[string]*MaterialSlot),
		log:       logrus.WithField("component", "virtualscene"),
	}
}

// Spawn adds a simulated object at position and returns its id.
func (s *Scene) Spawn(name string, position Vector, tags ...string) uuid.UUID {
	s.mux.Lock()
	defer s.mux.Unlock()
	pid := uuid.New()
	o := &object{
		name:      name,
		position:  position,
		facing:    Forward,
		simulated: true,
		tags:      make(map[string]struct{}),
	}
	for _, t := range tags {
		o.tags[t] = struct{}{}
	}
	s.objects[pid] = o
	return pid
}

// Destroy removes an object from the scene.
func (s *Scene) Destroy(pid uuid.UUID) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.objects, pid)
}

// Object returns a snapshot of the object.
func (s *Scene) Object(pid uuid.UUID) (Object, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	o, ok := s.objects[pid]
	if !ok {
		return Object{}, false
	}
	tags := make([]string, 0, len(o.tags))
	for t := range o.tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return Object{
		PID:       pid,
		Name:      o.name,
		Position:  o.position,
		Facing:    o.facing,
		Parent:    o.parent,
		Simulated: o.simulated,
		Tags:      tags,
	}, true
}

// HasTag implements scene.Tagger
func (s *Scene) HasTag(pid uuid.UUID, tag string) bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	o, ok := s.objects[pid]
	if !ok {
		return false
	}
	_, ok = o.tags[tag]
	return ok
}

// AddTag implements scene.Tagger
func (s *Scene) AddTag(pid uuid.UUID, tag string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if o, ok := s.objects[pid]; ok {
		o.tags[tag] = struct{}{}
	}
}

// RemoveTag implements scene.Tagger
func (s *Scene) RemoveTag(pid uuid.UUID, tag string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if o, ok := s.objects[pid]; ok {
		delete(o.tags, tag)
	}
}

// Snap implements scene.Physics
func (s *Scene) Snap(pid, anchor uuid.UUID) {
	s.mux.Lock()
	defer s.mux.Unlock()
	o, ok := s.objects[pid]
	a, ok2 := s.objects[anchor]
	if !ok || !ok2 {
		return
	}
	o.position = a.position
	o.facing = a.facing
}

// SetSimulated implements scene.Physics
func (s *Scene) SetSimulated(pid uuid.UUID, enabled bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if o, ok := s.objects[pid]; ok {
		o.simulated = enabled
	}
}

// SetParent implements scene.Physics
func (s *Scene) SetParent(pid, parent uuid.UUID) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if o, ok := s.objects[pid]; ok {
		o.parent = parent
	}
}

// Nudge implements scene.Physics
func (s *Scene) Nudge(pid, anchor uuid.UUID, distance float64) {
	s.mux.Lock()
	defer s.mux.Unlock()
	o, ok := s.objects[pid]
	a, ok2 := s.objects[anchor]
	if !ok || !ok2 {
		return
	}
	o.position = a.position.Add(a.facing, distance)
}

// Play implements scene.Audio
func (s *Scene) Play(cue string) {
	s.mux.Lock()
	s.played = append(s.played, cue)
	s.mux.Unlock()
	s.log.WithField("cue", cue).Debug("play")
}

// Played returns every cue played so far.
func (s *Scene) Played() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]string, len(s.played))
	copy(out, s.played)
	return out
}

// Switch is a named on/off presentation element: a light or a looping sound point.
type Switch struct {
	mux     *sync.Mutex
	enabled bool
}

// SetEnabled implements scene.Light and scene.Cue
func (w *Switch) SetEnabled(b bool) {
	w.mux.Lock()
	defer w.mux.Unlock()
	w.enabled = b
}

// Enabled reports the switch state.
func (w *Switch) Enabled() bool {
	w.mux.Lock()
	defer w.mux.Unlock()
	return w.enabled
}

// Switch returns the named switch, creating it off.
func (s *Scene) Switch(name string) *Switch {
	s.mux.Lock()
	defer s.mux.Unlock()
	w, ok := s.switches[name]
	if !ok {
		w = &Switch{mux: &sync.Mutex{}}
		s.switches[name] = w
	}
	return w
}

// MaterialSlot is a named renderer material group.
type MaterialSlot struct {
	mux   *sync.Mutex
	group string
}

// SetMaterialGroup implements scene.Material
func (m *MaterialSlot) SetMaterialGroup(group string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.group = group
}

// Group returns the selected material group.
func (m *MaterialSlot) Group() string {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.group
}

// Light implements scene.Presentation
func (s *Scene) Light(name string) scene.Light {
	return s.Switch(name)
}

// Cue implements scene.Presentation
func (s *Scene) Cue(name string) scene.Cue {
	return s.Switch(name)
}

// Material implements scene.Presentation
func (s *Scene) Material(name string) scene.Material {
	return s.MaterialSlot(name)
}

// MaterialSlot returns the named material slot, creating it on "default".
func (s *Scene) MaterialSlot(name string) *MaterialSlot {
	s.mux.Lock()
	defer s.mux.Unlock()
	m, ok := s.materials[name]
	if !ok {
		m = &MaterialSlot{mux: &sync.Mutex{}, group: "default"}
		s.materials[name] = m
	}
	return m
}

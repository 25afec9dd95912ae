package network

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/ohowland/powernet/internal/pkg/asset/socket"
)

// TestTopologyProperty drives random overlap, unplug and destroy sequences and checks the
// graph stays bipartite with every device served at most once.
func TestTopologyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		batteries := []uuid.UUID{f.battery(t, 50).PID(), f.battery(t, 50).PID()}
		devices := []uuid.UUID{
			f.device(t, 60, true).PID(),
			f.device(t, -30, true).PID(),
			f.device(t, 200, false).PID(),
		}

		var objects, plugs, sockets []uuid.UUID
		for _, d := range devices {
			object, p := f.plug(t, socket.Endpoint{Device: d})
			objects = append(objects, object)
			plugs = append(plugs, p.PID())
		}
		for _, b := range batteries {
			object, p := f.plug(t, socket.Endpoint{Battery: b})
			objects = append(objects, object)
			plugs = append(plugs, p.PID())
			sockets = append(sockets, f.socket(t, socket.Endpoint{Battery: b}).PID())
			sockets = append(sockets, f.socket(t, socket.Endpoint{Battery: b}).PID())
		}
		for _, d := range devices {
			sockets = append(sockets, f.socket(t, socket.Endpoint{Device: d}).PID())
		}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 5).Draw(t, "op") {
			case 0, 1, 2:
				s := rapid.SampledFrom(sockets).Draw(t, "socket")
				o := rapid.SampledFrom(objects).Draw(t, "object")
				f.net.Overlap(s, o)
			case 3:
				f.net.Unplug(rapid.SampledFrom(sockets).Draw(t, "socket"))
			case 4:
				f.net.Toggle(rapid.SampledFrom(devices).Draw(t, "device"))
			case 5:
				f.net.DestroyPlug(rapid.SampledFrom(plugs).Draw(t, "plug"))
			}
			snap := f.net.Tick(time.Minute)

			if err := f.net.Validate(); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
			holders := make(map[uuid.UUID]int)
			for _, s := range snap.Sockets {
				if s.IsPluggedIn {
					holders[s.Object]++
				}
			}
			for object, n := range holders {
				if n > 1 {
					t.Fatalf("object %v held by %d sockets", object, n)
				}
			}
			for _, b := range snap.Batteries {
				if b.CurrentCharge < 0 || b.CurrentCharge > b.MaxCharge {
					t.Fatalf("battery %v charge %v out of bounds", b.PID, b.CurrentCharge)
				}
			}
		}
	})
}

// TestDetachIdempotentProperty unplugs an already empty socket any number of times.
func TestDetachIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		b := f.battery(t, 50)
		d := f.device(t, 10, true)
		object, p := f.plug(t, socket.Endpoint{Device: d.PID()})
		s := f.socket(t, socket.Endpoint{Battery: b.PID()})
		if !f.net.Attach(s.PID(), object) {
			t.Fatalf("attach refused")
		}
		f.net.Unplug(s.PID())
		f.net.Tick(time.Second)
		before, _ := f.scene.Object(object)
		plugBefore := p.Status()

		n := rapid.IntRange(1, 10).Draw(t, "unplugs")
		for i := 0; i < n; i++ {
			f.net.Unplug(s.PID())
		}
		f.net.Tick(time.Second)

		now, _ := f.scene.Object(object)
		if now.Position != before.Position || now.Parent != before.Parent || now.Simulated != before.Simulated {
			t.Fatalf("object moved by redundant unplug")
		}
		if p.Status() != plugBefore {
			t.Fatalf("plug changed by redundant unplug")
		}
		if len(b.Connections()) != 0 {
			t.Fatalf("battery regained a connection")
		}
	})
}

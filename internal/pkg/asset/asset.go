package asset

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Identifier is implemented by every network entity: batteries, devices, plugs and sockets.
type Identifier interface {
	PID() uuid.UUID
	Name() string
}

// Fields names a for structured logs under kind, e.g. kind "battery" gives battery and
// batteryPID fields.
func Fields(kind string, a Identifier) logrus.Fields {
	return logrus.Fields{
		kind:         a.Name(),
		kind + "PID": a.PID(),
	}
}

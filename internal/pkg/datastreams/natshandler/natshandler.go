/*
natshandler.go Streams entity status to a NATS server. Each Status message is published as JSON on
<prefix>.<pid>; applied events go to <prefix>.events.
*/

package natshandler

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ohowland/powernet/internal/pkg/config"
	"github.com/ohowland/powernet/internal/pkg/msg"
)

// Conn is the part of *nats.Conn the handler uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Handler forwards published messages to NATS.
type Handler struct {
	pid    uuid.UUID
	inbox  <-chan msg.Msg
	config config.NATS
	log    *logrus.Entry
}

// New subscribes a handler to system.
func New(cfg config.NATS, system msg.Publisher) (*Handler, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	inbox, err := msg.Inbox(system, pid, msg.Status, msg.Event)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "nats subscribe")
	}
	if cfg.Server == "" {
		cfg.Server = nats.DefaultURL
	}
	return &Handler{
		pid:    pid,
		inbox:  inbox,
		config: cfg,
		log:    logrus.WithField("component", "nats"),
	}, nil
}

// PID is the subscriber id
func (h Handler) PID() uuid.UUID {
	return h.pid
}

// Connect dials the configured server.
func (h Handler) Connect() (*nats.Conn, error) {
	nc, err := nats.Connect(h.config.Server, nats.Name("powernet"))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "connect nats %s", h.config.Server)
	}
	return nc, nil
}

// Subject is the status subject for pid.
func (h Handler) Subject(pid uuid.UUID) string {
	return h.config.Prefix + "." + pid.String()
}

// Process publishes until ctx is done or the inbox closes. It closes conn on return.
func (h Handler) Process(ctx context.Context, conn Conn) {
	h.log.Info("process started")
	defer conn.Close()
loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			subject := h.Subject(m.PID())
			if m.Topic() == msg.Event {
				subject = h.config.Prefix + ".events"
			}
			data, err := json.Marshal(m.Payload())
			if err != nil {
				h.log.WithError(err).Warn("encode payload")
				continue
			}
			if err := conn.Publish(subject, data); err != nil {
				h.log.WithError(err).Warn("unable to publish to nats server")
			}
		case <-ctx.Done():
			break loop
		}
	}
	h.log.Info("process shutdown")
}

/*
mongodb.go Keeps the latest status and configuration of every entity in MongoDB, one document per
PID, so dashboards can read the current network state. Nothing is read back by the simulation.
*/

package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/asset/device"
	"github.com/ohowland/powernet/internal/pkg/asset/socket"
	"github.com/ohowland/powernet/internal/pkg/config"
	"github.com/ohowland/powernet/internal/pkg/msg"
)

// Collections written by the handler.
const (
	BatteryStatus = "batteryStatus"
	DeviceStatus  = "deviceStatus"
	SocketStatus  = "socketStatus"
	AssetConfig   = "assetConfig"
)

// Store upserts documents keyed by pid.
type Store interface {
	Upsert(ctx context.Context, collection string, pid uuid.UUID, update bson.D) error
	Close(ctx context.Context) error
}

type store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Dial connects to the configured database.
func Dial(ctx context.Context, cfg config.Mongo) (Store, error) {
	uri := cfg.URI
	if cfg.Port != "" {
		uri += ":" + cfg.Port
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "connect mongodb %s", uri)
	}
	return &store{client: client, db: client.Database(cfg.Database)}, nil
}

func (s *store) Upsert(ctx context.Context, collection string, pid uuid.UUID, update bson.D) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"pid": pid.String()}, update, opts)
	return err
}

func (s *store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Handler mirrors Status and Config messages into a Store.
type Handler struct {
	pid     uuid.UUID
	inbox   <-chan msg.Msg
	timeout time.Duration
	log     *logrus.Entry
}

// New subscribes a handler to system.
func New(cfg config.Mongo, system msg.Publisher) (*Handler, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	inbox, err := msg.Inbox(system, pid, msg.Status, msg.Config)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mongodb subscribe")
	}
	return &Handler{
		pid:     pid,
		inbox:   inbox,
		timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		log:     logrus.WithField("component", "mongodb"),
	}, nil
}

// PID is the subscriber id
func (h Handler) PID() uuid.UUID {
	return h.pid
}

// Collection picks the collection a message belongs to.
func Collection(m msg.Msg) (string, bool) {
	if m.Topic() == msg.Config {
		return AssetConfig, true
	}
	if m.Topic() != msg.Status {
		return "", false
	}
	switch m.Payload().(type) {
	case battery.Status:
		return BatteryStatus, true
	case device.Status:
		return DeviceStatus, true
	case socket.Status:
		return SocketStatus, true
	}
	return "", false
}

// Update is the $set document for m.
func Update(m msg.Msg) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"pid":     m.PID().String(),
			"data":    m.Payload(),
			"updated": time.Now().UTC(),
		}},
	}
}

// Process writes until ctx is done or the inbox closes, then closes s.
func (h Handler) Process(ctx context.Context, s Store) {
	h.log.Info("process started")
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			h.log.WithError(err).Warn("disconnect")
		}
	}()
loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			collection, ok := Collection(m)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, h.timeout)
			err := s.Upsert(wctx, collection, m.PID(), Update(m))
			cancel()
			if err != nil {
				h.log.WithError(err).WithField("collection", collection).Warn("upsert failed")
			}
		case <-ctx.Done():
			break loop
		}
	}
	h.log.Info("process shutdown")
}

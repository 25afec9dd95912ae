/*
sqldb.go Appends one row per battery per tick to a SQL table. Works against MySQL and PostgreSQL;
the driver named in the sink config selects the placeholder style.
*/

package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	// drivers selected by config.SQL.Driver
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/config"
	"github.com/ohowland/powernet/internal/pkg/msg"
)

// Execer is satisfied by *sql.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Handler writes battery status rows.
type Handler struct {
	pid    uuid.UUID
	inbox  <-chan msg.Msg
	config config.SQL
	log    *logrus.Entry
}

// New subscribes a handler to system.
func New(cfg config.SQL, system msg.Publisher) (*Handler, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	inbox, err := msg.Inbox(system, pid, msg.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "sql subscribe")
	}
	return &Handler{
		pid:    pid,
		inbox:  inbox,
		config: cfg,
		log: logrus.WithFields(logrus.Fields{
			"component": "sqldb",
			"driver":    cfg.Driver,
		}),
	}, nil
}

// PID is the subscriber id
func (h Handler) PID() uuid.UUID {
	return h.pid
}

// Open opens the configured database and checks it is reachable.
func (h Handler) Open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(h.config.Driver, h.config.DSN)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open %s", h.config.Driver)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pkgerrors.Wrapf(err, "ping %s", h.config.Driver)
	}
	return db, nil
}

// CreateTable is the DDL for the tick table.
func (h Handler) CreateTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pid VARCHAR(36) NOT NULL,
	name VARCHAR(64) NOT NULL,
	charge DOUBLE PRECISION NOT NULL,
	percentage DOUBLE PRECISION NOT NULL,
	status INTEGER NOT NULL,
	connections INTEGER NOT NULL,
	recorded_at TIMESTAMP NOT NULL
)`, h.config.Table)
}

// Insert is the row insert statement in the driver's placeholder style.
func (h Handler) Insert() string {
	const columns = 7
	marks := make([]string, columns)
	for i := range marks {
		if h.config.Driver == config.DriverPostgres {
			marks[i] = fmt.Sprintf("$%d", i+1)
		} else {
			marks[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (pid, name, charge, percentage, status, connections, recorded_at) VALUES (%s)",
		h.config.Table, strings.Join(marks, ", "))
}

// Row returns the insert arguments for a battery status message.
func Row(m msg.Msg, at time.Time) ([]interface{}, bool) {
	s, ok := m.Payload().(battery.Status)
	if !ok {
		return nil, false
	}
	return []interface{}{
		s.PID.String(),
		s.Name,
		s.CurrentCharge,
		s.ChargePercentage,
		int(s.ChargeStatus),
		s.Connections,
		at.UTC(),
	}, true
}

// Process creates the table and writes rows until ctx is done or the inbox closes.
func (h Handler) Process(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, h.CreateTable()); err != nil {
		return pkgerrors.Wrap(err, "create table")
	}
	insert := h.Insert()
	h.log.Info("process started")
loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			row, ok := Row(m, time.Now())
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, time.Second)
			_, err := db.ExecContext(wctx, insert, row...)
			cancel()
			if err != nil {
				h.log.WithError(err).Warn("insert failed")
			}
		case <-ctx.Done():
			break loop
		}
	}
	h.log.Info("process shutdown")
	return nil
}

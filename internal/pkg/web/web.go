package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ohowland/powernet/internal/pkg/asset/battery"
	"github.com/ohowland/powernet/internal/pkg/config"
	"github.com/ohowland/powernet/internal/pkg/msg"
)

// Doer sends requests; *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Handler posts battery status to a remote webhook.
type Handler struct {
	pid     uuid.UUID
	inbox   <-chan msg.Msg
	config  config.Webhook
	timeout time.Duration
	log     *logrus.Entry
}

// New subscribes a handler to system.
func New(cfg config.Webhook, system msg.Publisher) (*Handler, error) {
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, pkgerrors.Wrap(err, "webhook url")
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	inbox, err := msg.Inbox(system, pid, msg.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "webhook subscribe")
	}
	return &Handler{
		pid:     pid,
		inbox:   inbox,
		config:  cfg,
		timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		log:     logrus.WithField("component", "webhook"),
	}, nil
}

// PID is the subscriber id
func (h Handler) PID() uuid.UUID {
	return h.pid
}

// Target is the URL a battery's status is posted to.
func (h Handler) Target(name string) string {
	return h.config.URL + "/batteries/" + url.PathEscape(name) + "/status"
}

// PostBatteryStatus sends one status document.
func (h Handler) PostBatteryStatus(ctx context.Context, client Doer, s battery.Status) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Target(s.Name), bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return pkgerrors.Errorf("webhook %s: %s", h.Target(s.Name), resp.Status)
	}
	return nil
}

// Process posts until ctx is done or the inbox closes. Only battery status is sent.
func (h Handler) Process(ctx context.Context, client Doer) {
	h.log.Info("process started")
loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			s, ok := m.Payload().(battery.Status)
			if !ok {
				continue
			}
			if err := h.PostBatteryStatus(ctx, client, s); err != nil {
				h.log.WithError(err).Warn("post failed")
			}
		case <-ctx.Done():
			break loop
		}
	}
	h.log.Info("process shutdown")
}

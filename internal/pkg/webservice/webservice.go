/*
webservice.go HTTP front end for a running network: read-only status routes, command routes that
enqueue interactions for the next tick, a websocket status stream and the Prometheus endpoint.
*/

package webservice

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ohowland/powernet/internal/pkg/metrics"
	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/network"
)

// Network is what the service needs from *network.Network.
type Network interface {
	msg.Publisher
	Snapshot() network.Snapshot
	Toggle(device uuid.UUID)
	SetActive(device uuid.UUID, active bool)
	Unplug(socket uuid.UUID)
}

// Service serves one network.
type Service struct {
	net      Network
	registry *prometheus.Registry
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// StreamMsg is the websocket frame for one published message.
type StreamMsg struct {
	PID     uuid.UUID   `json:"PID"`
	Topic   string      `json:"Topic"`
	Payload interface{} `json:"Payload"`
}

// ActiveRequest is the body of POST /devices/{pid}/active.
type ActiveRequest struct {
	Active bool `json:"Active"`
}

// New returns a Service with its own metrics registry.
func New(n Network) (*Service, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(metrics.NewCollector(n)); err != nil {
		return nil, err
	}
	return &Service{
		net:      n,
		registry: registry,
		log:      logrus.WithField("component", "webservice"),
	}, nil
}

// Router wires every route.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.baseHandler).Methods("GET")
	r.HandleFunc("/snapshot", s.snapshotHandler).Methods("GET")
	r.HandleFunc("/batteries", s.batteriesHandler).Methods("GET")
	r.HandleFunc("/batteries/{pid}", s.batteryHandler).Methods("GET")
	r.HandleFunc("/devices", s.devicesHandler).Methods("GET")
	r.HandleFunc("/devices/{pid}", s.deviceHandler).Methods("GET")
	r.HandleFunc("/devices/{pid}/toggle", s.toggleHandler).Methods("POST")
	r.HandleFunc("/devices/{pid}/active", s.activeHandler).Methods("POST")
	r.HandleFunc("/sockets", s.socketsHandler).Methods("GET")
	r.HandleFunc("/sockets/{pid}/unplug", s.unplugHandler).Methods("POST")
	r.HandleFunc("/stream", s.streamHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

func (s *Service) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("malformed JSON")
	}
}

func (s *Service) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"Error": message})
}

func pidVar(r *http.Request) (uuid.UUID, bool) {
	pid, err := uuid.Parse(mux.Vars(r)["pid"])
	return pid, err == nil
}

func (s *Service) baseHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.net.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"Tick":      snap.Tick,
		"Batteries": len(snap.Batteries),
		"Devices":   len(snap.Devices),
		"Sockets":   len(snap.Sockets),
	})
}

func (s *Service) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.net.Snapshot())
}

func (s *Service) batteriesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.net.Snapshot().Batteries)
}

func (s *Service) batteryHandler(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidVar(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "malformed UUID")
		return
	}
	b, ok := s.net.Snapshot().Battery(pid)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no such battery")
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Service) devicesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.net.Snapshot().Devices)
}

func (s *Service) deviceHandler(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidVar(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "malformed UUID")
		return
	}
	d, ok := s.net.Snapshot().Device(pid)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no such device")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Service) toggleHandler(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidVar(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "malformed UUID")
		return
	}
	if _, ok := s.net.Snapshot().Device(pid); !ok {
		s.writeError(w, http.StatusNotFound, "no such device")
		return
	}
	s.net.Toggle(pid)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"Queued": "toggle"})
}

func (s *Service) activeHandler(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidVar(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "malformed UUID")
		return
	}
	req := ActiveRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON")
		return
	}
	if _, ok := s.net.Snapshot().Device(pid); !ok {
		s.writeError(w, http.StatusNotFound, "no such device")
		return
	}
	s.net.SetActive(pid, req.Active)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"Queued": "setActive"})
}

func (s *Service) socketsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.net.Snapshot().Sockets)
}

func (s *Service) unplugHandler(w http.ResponseWriter, r *http.Request) {
	pid, ok := pidVar(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "malformed UUID")
		return
	}
	k, ok := s.net.Snapshot().Socket(pid)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no such socket")
		return
	}
	if !k.IsPluggedIn {
		s.writeError(w, http.StatusConflict, "socket is empty")
		return
	}
	s.net.Unplug(pid)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"Queued": "unplug"})
}

// streamHandler upgrades to a websocket and forwards Status and Event messages until the
// client goes away.
func (s *Service) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade")
		return
	}
	defer conn.Close()

	pid := uuid.New()
	inbox, err := msg.Inbox(s.net, pid, msg.Status, msg.Event)
	if err != nil {
		s.log.WithError(err).Warn("stream subscribe")
		return
	}
	defer func() {
		s.net.Unsubscribe(pid)
		for range inbox {
		}
	}()

	// reader detects the client closing the connection
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case m, ok := <-inbox:
			if !ok {
				return
			}
			frame := StreamMsg{PID: m.PID(), Topic: m.Topic().String(), Payload: m.Payload()}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

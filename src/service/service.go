package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"

	"github.com/cyph3rasi/synapsis-swarm/src/discovery"
	"github.com/cyph3rasi/synapsis-swarm/src/gossip"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
	"github.com/cyph3rasi/synapsis-swarm/src/registry"
)

// maxRequestBytes caps inbound request bodies.
const maxRequestBytes = 4 << 20

// seenInteractions is the size of the dedupe window for interaction ids.
const seenInteractions = 4096

// InteractionSink receives validated, deduplicated interactions. The hosting
// application plugs in whatever turns them into notifications.
type InteractionSink func(*net.InteractionPayload) error

// Service is the inbound side of the swarm protocol: the HTTP endpoints that
// remote peers call. It runs on its own mux so several nodes can coexist in
// one process.
type Service struct {
	bindAddress string
	discovery   *discovery.Engine
	gossip      *gossip.Engine
	store       registry.Store
	sink        InteractionSink
	seen        *lru.Cache[string, struct{}]
	gatherer    prometheus.Gatherer
	server      *http.Server
	logger      *logrus.Entry
}

// NewService builds the inbound API. A nil gatherer serves the process-wide
// default metrics registry.
func NewService(
	bindAddress string,
	discoveryEngine *discovery.Engine,
	gossipEngine *gossip.Engine,
	store registry.Store,
	sink InteractionSink,
	gatherer prometheus.Gatherer,
	logger *logrus.Entry,
) (*Service, error) {
	seen, err := lru.New[string, struct{}](seenInteractions)
	if err != nil {
		return nil, err
	}

	service := &Service{
		bindAddress: bindAddress,
		discovery:   discoveryEngine,
		gossip:      gossipEngine,
		store:       store,
		sink:        sink,
		seen:        seen,
		gatherer:    gatherer,
		logger:      logger,
	}

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.Mux(),
	}

	return service, nil
}

// Mux returns the routing table, for embedding into an existing server.
func (s *Service) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/swarm/info", s.makeHandler(http.MethodGet, s.GetInfo))
	mux.HandleFunc("/swarm/announce", s.makeHandler(http.MethodPost, s.PostAnnounce))
	mux.HandleFunc("/swarm/gossip", s.makeHandler(http.MethodPost, s.PostGossip))
	mux.HandleFunc("/swarm/interactions/", s.makeHandler(http.MethodPost, s.PostInteraction))
	mux.HandleFunc("/swarm/nodes", s.makeHandler(http.MethodGet, s.GetNodes))
	mux.HandleFunc("/swarm/synclog", s.makeHandler(http.MethodGet, s.GetSyncLog))
	metricsHandler := promhttp.Handler()
	if s.gatherer != nil {
		metricsHandler = promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}
	mux.Handle("/metrics", metricsHandler)
	return mux
}

func (s *Service) makeHandler(method string, fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call; use Shutdown to stop.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("serving swarm API")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// GetInfo serves this node's public self-description.
func (s *Service) GetInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.discovery.BuildNodeInfo()
	if err != nil {
		s.logger.WithError(err).Error("building node info")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, info)
}

// PostAnnounce registers the announcing node and replies with our own info.
func (s *Service) PostAnnounce(w http.ResponseWriter, r *http.Request) {
	var announcement net.Announcement
	if err := decodeJSON(r.Body, &announcement); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if announcement.Domain == "" {
		http.Error(w, "announcement without a domain", http.StatusBadRequest)
		return
	}

	// UpsertBatch rather than UpsertNode: it drops our own domain, so a
	// confused peer announcing as us is ignored rather than stored.
	if _, _, err := s.store.UpsertBatch([]*registry.SwarmNode{announcement.ToNode()}, announcement.Domain); err != nil {
		s.logger.WithField("domain", announcement.Domain).WithError(err).Error("storing announcement")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info, err := s.discovery.BuildNodeInfo()
	if err != nil {
		s.logger.WithError(err).Error("building node info")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.WithField("domain", announcement.Domain).Debug("received announcement")

	writeJSON(w, info)
}

// PostGossip runs the receiving half of a duplex exchange.
func (s *Service) PostGossip(w http.ResponseWriter, r *http.Request) {
	var envelope net.SignedEnvelope
	if err := decodeJSON(r.Body, &envelope); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response, err := s.gossip.ProcessInbound(r.Context(), &envelope)
	switch {
	case errors.Is(err, gossip.ErrEmptyPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, gossip.ErrUnauthenticated):
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, response)
}

// PostInteraction accepts one user-level event. Replays of an already seen
// interaction id are acknowledged without reprocessing.
func (s *Service) PostInteraction(w http.ResponseWriter, r *http.Request) {
	kind := net.InteractionKind(strings.TrimPrefix(r.URL.Path, "/swarm/interactions/"))
	if !net.ValidInteractionKind(kind) {
		http.Error(w, "unknown interaction kind", http.StatusBadRequest)
		return
	}

	var payload net.InteractionPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if payload.Kind == "" {
		payload.Kind = kind
	}
	if payload.Kind != kind {
		http.Error(w, "payload kind does not match path", http.StatusBadRequest)
		return
	}
	if payload.InteractionID == "" {
		http.Error(w, "missing interaction id", http.StatusBadRequest)
		return
	}

	if _, dup := s.seen.Get(payload.InteractionID); dup {
		writeJSON(w, map[string]string{"status": "duplicate"})
		return
	}

	if s.sink != nil {
		if err := s.sink(&payload); err != nil {
			s.logger.WithField("kind", kind).WithError(err).Error("processing interaction")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	s.seen.Add(payload.InteractionID, struct{}{})

	writeJSON(w, map[string]string{"status": "accepted"})
}

// GetNodes lists active registry entries, most trusted first.
func (s *Service) GetNodes(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 100)

	nodes, err := s.store.ListActive(limit)
	if err != nil {
		s.logger.WithError(err).Error("listing nodes")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, nodes)
}

// GetSyncLog serves the most recent gossip audit records.
func (s *Service) GetSyncLog(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)

	log, err := s.store.SyncLog(limit)
	if err != nil {
		s.logger.WithError(err).Error("reading sync log")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, log)
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := codec.NewEncoder(w, new(codec.JsonHandle))
	enc.Encode(v)
}

func decodeJSON(body io.Reader, out interface{}) error {
	dec := codec.NewDecoder(io.LimitReader(body, maxRequestBytes), new(codec.JsonHandle))
	return dec.Decode(out)
}

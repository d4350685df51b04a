package signal

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"peercore/internal/core/domain"
	"peercore/internal/core/ports"
	"peercore/internal/core/services/peer"
	"peercore/internal/infrastructure/monitoring"
	"peercore/internal/infrastructure/repositories/redis"
	"peercore/pkg/batch"
	rlog "peercore/pkg/logger"
	"peercore/pkg/tracing"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Config carries the control-channel's own tunables, distinct from the
// Peer's RTCP scheduler Config.
type Config struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	RequestsPerSecond float64
	Burst             int

	NotifyBatchSize     int
	NotifyBatchInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		PingInterval:        30 * time.Second,
		PongTimeout:         60 * time.Second,
		ReadTimeout:         60 * time.Second,
		WriteTimeout:        10 * time.Second,
		RequestsPerSecond:   50,
		Burst:               100,
		NotifyBatchSize:     16,
		NotifyBatchInterval: 50 * time.Millisecond,
	}
}

// requestEnvelope/responseEnvelope wrap a domain.Request/Response with a
// client-chosen correlation id, since a single websocket connection
// multiplexes every in-flight request for its Peer.
type requestEnvelope struct {
	ID      string         `json:"id"`
	Request domain.Request `json:"request"`
}

type responseEnvelope struct {
	ID       string          `json:"id"`
	Response domain.Response `json:"response"`
}

type notifyEnvelope struct {
	Type  string                 `json:"type"`
	Items []domain.Notification `json:"items"`
}

// notifyOperation is a single queued notification; notifyProcessor is what
// actually flushes a batch of them as one frame.
type notifyOperation struct {
	note domain.Notification
}

func (notifyOperation) Execute(context.Context) error { return nil }

type notifyProcessor struct {
	conn *connHandle
}

func (p *notifyProcessor) ProcessBatch(ctx context.Context, ops []batch.Operation) error {
	notes := make([]domain.Notification, 0, len(ops))
	for _, op := range ops {
		if n, ok := op.(notifyOperation); ok {
			notes = append(notes, n.note)
		}
	}
	if len(notes) == 0 {
		return nil
	}
	return p.conn.writeJSON(notifyEnvelope{Type: "notifications", Items: notes})
}

// connHandle is the per-connection state: the Peer it drives, its outbound
// notification batcher, and its per-peer request rate limiter.
type connHandle struct {
	conn    *websocket.Conn
	peer    *peer.Peer
	batcher *batch.Batcher
	limiter *rate.Limiter
	writeMu sync.Mutex
}

func (c *connHandle) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Server is the control channel: one gorilla/websocket connection per Peer,
// JWT-identified at upgrade, carrying JSON request/response/notification
// envelopes. Inbound RTCP arrives over the Transport's own UDP/ICE socket,
// not here — that boundary stays out of scope.
type Server struct {
	cfg     Config
	peerCfg peer.Config
	auth    *PeerAuthenticator
	router  *Router

	conns map[domain.ID]*connHandle
	mu    sync.RWMutex

	metrics *monitoring.PrometheusCollector

	peerDir      *redis.PeerDirectory
	instanceAddr string

	zapLog *zap.Logger
	log    *zap.SugaredLogger
}

// SetMetrics attaches a Prometheus collector. Nil-safe: metrics stay
// no-ops until a collector is attached, so tests never need one.
func (s *Server) SetMetrics(m *monitoring.PrometheusCollector) {
	s.metrics = m
}

// SetPeerDirectory attaches the cross-instance directory so every attached
// Peer is advertised under instanceAddr and kept alive by the ping ticker.
// Nil-safe: the directory stays unused in single-instance deployments.
func (s *Server) SetPeerDirectory(dir *redis.PeerDirectory, instanceAddr string) {
	s.peerDir = dir
	s.instanceAddr = instanceAddr
}

func NewServer(cfg Config, peerCfg peer.Config, auth *PeerAuthenticator, router *Router, log *zap.Logger) *Server {
	if log == nil {
		log = rlog.New("info")
	}
	return &Server{
		cfg:     cfg,
		peerCfg: peerCfg,
		auth:    auth,
		router:  router,
		conns:   make(map[domain.ID]*connHandle),
		zapLog:  log,
		log:     log.Sugar(),
	}
}

// Notify implements ports.Notifier: every Peer on this instance shares this
// single Server as its Notifier, since Notify already carries the target
// peerId.
func (s *Server) Notify(peerID domain.ID, n domain.Notification) {
	s.mu.RLock()
	ch, ok := s.conns[peerID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	_ = ch.batcher.Add(notifyOperation{note: n})
}

func bearerToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.auth.ValidateToken(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	peerID := claims.PeerID
	peerName := claims.PeerName

	ch := &connHandle{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst),
	}
	ch.batcher = batch.NewBatcher(s.cfg.NotifyBatchSize, s.cfg.NotifyBatchInterval, &notifyProcessor{conn: ch})
	ch.peer = peer.New(peerID, peerName, s.peerCfg, s.router, s, s.zapLog)

	s.mu.Lock()
	if existing, isReconnect := s.conns[peerID]; isReconnect {
		existing.conn.Close()
		s.log.Infow("closing old connection for reconnecting peer", "peer_id", peerID)
	}
	s.conns[peerID] = ch
	s.mu.Unlock()

	s.router.AddPeer(ch.peer)
	s.log.Infow("peer attached", "peer_id", peerID, "peer_name", peerName)
	if s.metrics != nil {
		s.metrics.RecordPeerAttached()
	}
	if s.peerDir != nil {
		if err := s.peerDir.Register(r.Context(), peerID, s.instanceAddr); err != nil {
			s.log.Warnw("peer directory register failed", "peer_id", peerID, "error", err)
		}
	}

	defer func() {
		s.mu.Lock()
		if s.conns[peerID] == ch {
			delete(s.conns, peerID)
		}
		s.mu.Unlock()
		ch.batcher.Stop()
		ch.peer.Destroy()
		s.log.Infow("peer detached", "peer_id", peerID)
		if s.metrics != nil {
			s.metrics.RecordPeerClosed()
		}
		if s.peerDir != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.peerDir.Unregister(ctx, peerID); err != nil {
				s.log.Warnw("peer directory unregister failed", "peer_id", peerID, "error", err)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	envChan := make(chan requestEnvelope, 16)
	errChan := make(chan error, 1)

	go func() {
		for {
			var env requestEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				errChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			envChan <- env
		}
	}()

	for {
		select {
		case env := <-envChan:
			s.handleEnvelope(ch, env)

		case <-pingTicker.C:
			ch.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			ch.writeMu.Unlock()
			if err != nil {
				s.log.Infow("error sending ping", "peer_id", peerID, "error", err)
				return
			}
			if s.peerDir != nil {
				if err := s.peerDir.TouchLease(r.Context(), peerID); err != nil {
					s.log.Warnw("peer directory lease renewal failed", "peer_id", peerID, "error", err)
				}
			}

		case err := <-errChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Infow("error reading from peer", "peer_id", peerID, "error", err)
			}
			return
		}
	}
}

func (s *Server) handleEnvelope(ch *connHandle, env requestEnvelope) {
	peerID := ch.peer.ID()
	method := string(env.Request.Method)

	if !ch.limiter.Allow() {
		if s.metrics != nil {
			s.metrics.RecordRequestRejected(env.Request.Method, "rate_limited")
		}
		s.writeResponse(ch, env.ID, domain.Reject("too many requests"))
		return
	}

	_, span := tracing.TracePeerRequest(context.Background(), method, strconv.FormatUint(uint64(peerID), 10))
	defer span.End()

	resp := ch.peer.HandleRequest(env.Request)
	if s.metrics != nil {
		if resp.Ok {
			s.metrics.RecordRequestRouted(env.Request.Method)
		} else {
			s.metrics.RecordRequestRejected(env.Request.Method, resp.Reason)
		}
	}
	s.writeResponse(ch, env.ID, resp)
}

func (s *Server) writeResponse(ch *connHandle, id string, resp domain.Response) {
	if err := ch.writeJSON(responseEnvelope{ID: id, Response: resp}); err != nil {
		s.log.Infow("error writing response", "error", err)
	}
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	count := len(s.conns)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy","peers":` + strconv.Itoa(count) + `}`))
}

func (s *Server) GetConnectedPeers() []domain.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.ID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) IsPeerConnected(id domain.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conns[id]
	return ok
}

// PeerByID looks up an attached Peer for the admin dump endpoint.
func (s *Server) PeerByID(id domain.ID) (*peer.Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.conns[id]
	if !ok {
		return nil, false
	}
	return ch.peer, true
}

var _ ports.Notifier = (*Server)(nil)

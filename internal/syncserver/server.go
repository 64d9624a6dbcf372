// Package syncserver exposes a docstore backend to remote clients: anonymous
// principal issuance over HTTP and a websocket carrying writes and live
// collection snapshots.
package syncserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/julianstephens/studyplanner/internal/auth"
	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/docstore/remote"
	"github.com/julianstephens/studyplanner/internal/logger"
	"github.com/julianstephens/studyplanner/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	store  docstore.Store
	issuer *auth.Issuer
	cfg    Config
	tracer trace.Tracer

	mu    sync.Mutex
	conns int
}

func New(store docstore.Store, issuer *auth.Issuer, cfg Config) *Server {
	return &Server{
		store:  store,
		issuer: issuer,
		cfg:    cfg.withDefaults(),
		tracer: telemetry.Tracer("syncserver"),
	}
}

// Handler routes the server's endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "ok connections=%d", s.Connections())
	})
	mux.HandleFunc("POST "+auth.AnonymousPath, s.handleAnonymous)
	mux.HandleFunc("GET "+remote.WSPath, s.handleWS)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Sync server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("Sync server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	p, err := s.issuer.Issue()
	if err != nil {
		logger.Error("Failed to issue principal", "error", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	uid, err := s.issuer.Verify(bearer(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conns--
		s.mu.Unlock()
	}()

	c := newClient(s, conn, uid)
	c.serve(r.Context())
}

// Connections returns the number of open websocket clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// client is one websocket connection and its subscriptions.
type client struct {
	srv  *Server
	conn *websocket.Conn
	uid  string
	log  *log.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*docstore.Subscription
	wg   sync.WaitGroup
}

func newClient(srv *Server, conn *websocket.Conn, uid string) *client {
	return &client{
		srv:  srv,
		conn: conn,
		uid:  uid,
		log:  logger.With("uid", uid),
		subs: make(map[string]*docstore.Subscription),
	}
}

func (c *client) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		c.mu.Lock()
		for id, sub := range c.subs {
			sub.Close()
			delete(c.subs, id)
		}
		c.mu.Unlock()
		c.wg.Wait()
		_ = c.conn.Close()
		c.log.Debug("Sync client disconnected")
	}()

	c.log.Debug("Sync client connected")

	pongWait := 2 * c.srv.cfg.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.wg.Add(1)
	go c.pinger(ctx)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Sync client read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg remote.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(remote.Message{Type: remote.TypeError, Error: "invalid message format", Code: remote.CodeBadRequest})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *client) pinger(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(c.srv.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			// Unblocks the read loop on server shutdown.
			_ = c.conn.Close()
			return
		case <-t.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.srv.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) send(msg remote.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("Failed to encode sync frame", "error", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Debug("Sync write failed", "error", err)
	}
}

func (c *client) fail(req remote.Message, err error) {
	c.send(remote.Message{
		Type:  remote.TypeError,
		ReqID: req.ReqID,
		SubID: req.SubID,
		Error: err.Error(),
		Code:  remote.ErrorCode(err),
	})
}

func (c *client) handle(ctx context.Context, msg remote.Message) {
	if msg.Type == remote.TypeUnsubscribe {
		c.mu.Lock()
		sub := c.subs[msg.SubID]
		delete(c.subs, msg.SubID)
		c.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		return
	}

	path, err := docstore.ParsePath(msg.Path)
	if err != nil {
		c.fail(msg, err)
		return
	}

	spanCtx, span := c.srv.tracer.Start(ctx, "sync."+msg.Type, trace.WithAttributes(
		attribute.String("collection", path.Collection),
		attribute.String("uid", c.uid),
	))
	defer span.End()

	var reply remote.Message
	switch msg.Type {
	case remote.TypeCreate, remote.TypeUpdate:
		fields, perr := parseFields(msg.Fields)
		if perr != nil {
			err = perr
			break
		}
		if msg.Type == remote.TypeCreate {
			var id string
			id, err = c.srv.store.Create(spanCtx, path, fields)
			reply = remote.Message{Type: remote.TypeAck, ReqID: msg.ReqID, ID: id}
		} else {
			err = c.srv.store.Update(spanCtx, path, msg.ID, fields)
			reply = remote.Message{Type: remote.TypeAck, ReqID: msg.ReqID, ID: msg.ID}
		}
	case remote.TypeDelete:
		err = c.srv.store.Delete(spanCtx, path, msg.ID)
		reply = remote.Message{Type: remote.TypeAck, ReqID: msg.ReqID, ID: msg.ID}
	case remote.TypeSubscribe:
		err = c.subscribe(ctx, msg, path)
		reply = remote.Message{Type: remote.TypeAck, ReqID: msg.ReqID, SubID: msg.SubID}
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		telemetry.RecordError(span, err)
		c.log.Warn("Sync request failed", "type", msg.Type, "collection", path.Collection, "id", msg.ID, "error", err)
		c.fail(msg, err)
		return
	}
	c.send(reply)
}

func parseFields(raw json.RawMessage) (docstore.Fields, error) {
	if len(raw) == 0 {
		return docstore.Fields{}, nil
	}
	return docstore.ParseFields(raw)
}

func (c *client) subscribe(ctx context.Context, msg remote.Message, path docstore.Path) error {
	if msg.SubID == "" {
		return errors.New("subscribe requires sub_id")
	}
	c.mu.Lock()
	_, dup := c.subs[msg.SubID]
	c.mu.Unlock()
	if dup {
		return fmt.Errorf("subscription %s already exists", msg.SubID)
	}

	sub, err := c.srv.store.Subscribe(ctx, path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[msg.SubID] = sub
	c.mu.Unlock()

	c.wg.Add(1)
	go c.forward(msg.SubID, sub)
	return nil
}

func (c *client) forward(subID string, sub *docstore.Subscription) {
	defer c.wg.Done()
	for snap := range sub.C() {
		out := remote.Message{Type: remote.TypeSnapshot, SubID: subID, Path: snap.Path.String()}
		if snap.Err != nil {
			out.Error = snap.Err.Error()
			out.Code = remote.ErrorCode(snap.Err)
		} else {
			out.Docs = snap.Docs
			if out.Docs == nil {
				out.Docs = []docstore.Document{}
			}
		}
		c.send(out)
	}
}

// Package remote is a docstore backend that talks to a sync server over a
// websocket. Every subscription and write is multiplexed on one connection.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/logger"
)

// ErrDisconnected is delivered to subscribers and pending requests when the
// connection drops.
var ErrDisconnected = errors.New("sync server connection lost")

const writeTimeout = 10 * time.Second

type Store struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Message
	subs    map[string]*docstore.Subscription
	closed  bool
	err     error

	done chan struct{}
}

// Dial connects to the sync server at base (ws:// or wss://, optionally with
// a path prefix) authenticating with token.
func Dial(ctx context.Context, base, token string) (*Store, error) {
	endpoint, err := wsURL(base)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to sync server: %w (status %s)", err, resp.Status)
		}
		return nil, fmt.Errorf("failed to connect to sync server: %w", err)
	}

	s := &Store{
		conn:    conn,
		pending: make(map[string]chan Message),
		subs:    make(map[string]*docstore.Subscription),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	logger.Debug("Connected to sync server", "url", endpoint)
	return s, nil
}

func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid sync server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported sync server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + WSPath
	u.RawQuery = ""
	return u.String(), nil
}

func (s *Store) readLoop() {
	var readErr error
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Ignoring malformed sync frame", "error", err)
			continue
		}
		s.dispatch(msg)
	}

	s.mu.Lock()
	wasClosed := s.closed
	s.closed = true
	if s.err == nil {
		s.err = ErrDisconnected
	}
	pending := s.pending
	s.pending = make(map[string]chan Message)
	subs := make([]*docstore.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	close(s.done)
	for _, ch := range pending {
		close(ch)
	}
	if !wasClosed {
		logger.Error("Sync server connection lost", "error", readErr)
		for _, sub := range subs {
			sub.Publish(docstore.Snapshot{Err: fmt.Errorf("%w: %v", ErrDisconnected, readErr)})
		}
	}
}

func (s *Store) dispatch(msg Message) {
	switch msg.Type {
	case TypeSnapshot:
		s.mu.Lock()
		sub := s.subs[msg.SubID]
		s.mu.Unlock()
		if sub == nil {
			return
		}
		if msg.Error != "" {
			sub.Publish(docstore.Snapshot{Err: errorFrom(msg)})
			return
		}
		docs := msg.Docs
		if docs == nil {
			docs = []docstore.Document{}
		}
		for i := range docs {
			if docs[i].Fields == nil {
				docs[i].Fields = docstore.Fields{}
			}
		}
		sub.Publish(docstore.Snapshot{Docs: docs})
	case TypeAck, TypeError:
		s.mu.Lock()
		ch, ok := s.pending[msg.ReqID]
		delete(s.pending, msg.ReqID)
		s.mu.Unlock()
		if ok {
			ch <- msg
		} else if msg.Type == TypeError {
			logger.Warn("Sync server error", "error", msg.Error)
		}
	}
}

func (s *Store) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode sync frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// request sends msg and waits for the matching ack or error.
func (s *Store) request(ctx context.Context, msg Message) (Message, error) {
	msg.ReqID = uuid.NewString()
	ch := make(chan Message, 1)

	s.mu.Lock()
	if s.closed {
		err := s.err
		s.mu.Unlock()
		if err == nil || errors.Is(err, docstore.ErrClosed) {
			return Message{}, docstore.ErrClosed
		}
		return Message{}, err
	}
	s.pending[msg.ReqID] = ch
	s.mu.Unlock()

	forget := func() {
		s.mu.Lock()
		delete(s.pending, msg.ReqID)
		s.mu.Unlock()
	}

	if err := s.write(msg); err != nil {
		forget()
		return Message{}, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Message{}, ErrDisconnected
		}
		if resp.Type == TypeError {
			return Message{}, errorFrom(resp)
		}
		return resp, nil
	case <-ctx.Done():
		forget()
		return Message{}, ctx.Err()
	}
}

func (s *Store) Create(ctx context.Context, path docstore.Path, fields docstore.Fields) (string, error) {
	if err := path.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	resp, err := s.request(ctx, Message{Type: TypeCreate, Path: path.String(), Fields: raw})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (s *Store) Update(ctx context.Context, path docstore.Path, id string, fields docstore.Fields) error {
	if err := path.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	_, err = s.request(ctx, Message{Type: TypeUpdate, Path: path.String(), ID: id, Fields: raw})
	return err
}

func (s *Store) Delete(ctx context.Context, path docstore.Path, id string) error {
	if err := path.Validate(); err != nil {
		return err
	}
	_, err := s.request(ctx, Message{Type: TypeDelete, Path: path.String(), ID: id})
	return err
}

func (s *Store) Subscribe(ctx context.Context, path docstore.Path) (*docstore.Subscription, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}

	subID := uuid.NewString()
	sub := docstore.NewSubscription(path, func() { s.unsubscribe(subID) })

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	s.subs[subID] = sub
	s.mu.Unlock()

	if _, err := s.request(ctx, Message{Type: TypeSubscribe, Path: path.String(), SubID: subID}); err != nil {
		s.mu.Lock()
		delete(s.subs, subID)
		s.mu.Unlock()
		return nil, err
	}

	sub.BindContext(ctx)
	return sub, nil
}

func (s *Store) unsubscribe(subID string) {
	s.mu.Lock()
	_, ok := s.subs[subID]
	delete(s.subs, subID)
	closed := s.closed
	s.mu.Unlock()

	if !ok || closed {
		return
	}
	if err := s.write(Message{Type: TypeUnsubscribe, SubID: subID}); err != nil {
		logger.Debug("Failed to send unsubscribe", "sub_id", subID, "error", err)
	}
}

// Done is closed once the connection has ended.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.err = docstore.ErrClosed
	subs := make([]*docstore.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[string]*docstore.Subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	err := s.conn.Close()
	<-s.done
	return err
}

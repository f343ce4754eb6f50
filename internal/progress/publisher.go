// Package progress streams conversation events to an external listener over
// a websocket.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/service/conversation"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

type StateCallback func(state ConnState)

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// Publisher is a conversation.Observer. OnEvent never blocks: events are
// queued and written by a single goroutine, and dropped when the queue is
// full or the connection is gone for good.
type Publisher struct {
	wsURL                string
	conn                 *websocket.Conn
	state                ConnState
	stateMu              sync.RWMutex
	stateCallbacks       []stateCallbackEntry
	nextCallbackID       int
	callbacksMu          sync.RWMutex
	reconnectAttempts    int
	maxReconnectAttempts int
	reconnectDelay       time.Duration
	queue                chan Envelope
	dropped              atomic.Int64
	logger               *zap.Logger
	stopCh               chan struct{}
	stopOnce             sync.Once
	writerWg             sync.WaitGroup
}

var _ conversation.Observer = (*Publisher)(nil)

func NewPublisher(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		wsURL:                wsURL,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		queue:                make(chan Envelope, defaultQueueSize),
		logger:               logger,
		stopCh:               make(chan struct{}),
		nextCallbackID:       1,
	}
}

// Connect dials the socket and starts the writer.
func (p *Publisher) Connect(ctx context.Context) error {
	if err := p.dial(ctx); err != nil {
		return err
	}
	p.writerWg.Add(1)
	go p.writeLoop(ctx)
	return nil
}

func (p *Publisher) dial(ctx context.Context) error {
	p.setState(StateConnecting)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, p.wsURL, nil)
	if err != nil {
		p.logger.Error("Failed to connect progress socket", zap.Error(err))
		p.setState(StateFailed)
		return err
	}

	p.stateMu.Lock()
	p.conn = conn
	p.stateMu.Unlock()
	p.reconnectAttempts = 0
	p.setState(StateConnected)

	p.logger.Info("Progress socket connected", zap.String("url", p.wsURL))
	return nil
}

func (p *Publisher) OnEvent(_ context.Context, e conversation.Event) {
	select {
	case p.queue <- Envelope{Type: envelopeType, Event: e}:
	default:
		n := p.dropped.Add(1)
		p.logger.Warn("Progress queue full, dropping event",
			zap.String("test_id", e.TestID),
			zap.String("kind", string(e.Kind)),
			zap.Int64("dropped", n),
		)
	}
}

// Dropped reports how many events were discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) writeLoop(ctx context.Context) {
	defer p.writerWg.Done()
	defer p.logger.Info("Progress writer stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			p.drain()
			return
		case env := <-p.queue:
			if !p.write(ctx, env) {
				return
			}
		}
	}
}

// drain flushes whatever is queued at shutdown, best effort.
func (p *Publisher) drain() {
	for {
		select {
		case env := <-p.queue:
			if err := p.send(env); err != nil {
				return
			}
		default:
			return
		}
	}
}

// write sends one envelope, reconnecting on failure. It returns false once
// the publisher has given up.
func (p *Publisher) write(ctx context.Context, env Envelope) bool {
	for {
		err := p.send(env)
		if err == nil {
			return true
		}
		p.logger.Error("Progress socket write error", zap.Error(err))
		p.setState(StateDisconnected)
		if !p.reconnect(ctx) {
			return false
		}
	}
}

func (p *Publisher) send(env Envelope) error {
	p.stateMu.RLock()
	conn := p.conn
	p.stateMu.RUnlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(env)
}

func (p *Publisher) reconnect(ctx context.Context) bool {
	for {
		p.reconnectAttempts++
		if p.reconnectAttempts > p.maxReconnectAttempts {
			p.logger.Error("Max reconnect attempts reached",
				zap.Int("attempts", p.reconnectAttempts),
			)
			p.setState(StateFailed)
			return false
		}

		p.setState(StateReconnecting)
		p.logger.Info("Scheduling reconnect",
			zap.Int("attempt", p.reconnectAttempts),
			zap.Int("max", p.maxReconnectAttempts),
			zap.Duration("delay", p.reconnectDelay),
		)

		select {
		case <-time.After(p.reconnectDelay):
		case <-ctx.Done():
			return false
		case <-p.stopCh:
			return false
		}

		p.closeConn()
		if err := p.dial(ctx); err == nil {
			return true
		}
	}
}

func (p *Publisher) OnStateChange(callback StateCallback) func() {
	p.callbacksMu.Lock()
	id := p.nextCallbackID
	p.nextCallbackID++
	p.stateCallbacks = append(p.stateCallbacks, stateCallbackEntry{
		id:       id,
		callback: callback,
	})
	p.callbacksMu.Unlock()

	return func() {
		p.callbacksMu.Lock()
		defer p.callbacksMu.Unlock()
		for i, entry := range p.stateCallbacks {
			if entry.id == id {
				p.stateCallbacks = append(p.stateCallbacks[:i], p.stateCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (p *Publisher) setState(newState ConnState) {
	p.stateMu.Lock()
	oldState := p.state
	p.state = newState
	p.stateMu.Unlock()

	if oldState == newState {
		return
	}
	p.logger.Debug("Progress socket state changed",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	p.callbacksMu.RLock()
	callbacks := make([]stateCallbackEntry, len(p.stateCallbacks))
	copy(callbacks, p.stateCallbacks)
	p.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(newState)
	}
}

func (p *Publisher) State() ConnState {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

func (p *Publisher) closeConn() {
	p.stateMu.Lock()
	conn := p.conn
	p.conn = nil
	p.stateMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close flushes queued events, closes the socket and waits for the writer.
func (p *Publisher) Close() error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})

	done := make(chan struct{})
	go func() {
		p.writerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		p.logger.Warn("Timeout waiting for progress writer to stop")
	}

	p.stateMu.RLock()
	conn := p.conn
	p.stateMu.RUnlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
	p.closeConn()
	p.setState(StateDisconnected)
	return nil
}

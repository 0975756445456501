package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"meshnode/internal/config"
	"meshnode/internal/dataType"
	"meshnode/internal/summarize"
	"meshnode/internal/utils"
)

// App is the presentation layer as the node sees it. Both methods are called
// from connection goroutines and must not block on the node; Shutdown only
// asks the app to stop, the app then calls Node.Close itself.
type App interface {
	Log(text string)
	Shutdown()
}

var ErrAlreadyStarted = errors.New("node already started")

const dialBackoff = 500 * time.Millisecond

// Node is one member of the flood-broadcast mesh. It owns the connection
// registry and the dedup store for its whole lifetime.
type Node struct {
	cfg        *config.MainConfig
	app        App
	summarizer summarize.Summarizer
	logger     *zap.Logger

	registry *registry
	seen     *dataType.SeenSet
	connSem  *semaphore.Weighted
	sosSem   *semaphore.Weighted

	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	startMu   sync.Mutex
	closeOnce sync.Once
}

func NewNode(cfg *config.MainConfig, app App, s summarize.Summarizer, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		app:        app,
		summarizer: s,
		logger:     logger,
		registry:   newRegistry(),
		seen:       dataType.NewSeenSet(cfg.SeenCapacity, dataType.DefaultSeenBuckets),
		connSem:    semaphore.NewWeighted(int64(cfg.MaxConnections)),
		sosSem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentSOS)),
	}
}

// Start binds the listening socket and launches the acceptor and the peer
// connector. A bind failure is the only error it returns. Cancelling ctx
// has the same effect as Close.
func (n *Node) Start(ctx context.Context) error {
	n.startMu.Lock()
	defer n.startMu.Unlock()
	if n.started {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", n.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.ListenAddr(), err)
	}
	n.listener = ln
	n.started = true
	// the parent context bounds the node's whole life, sockets included
	context.AfterFunc(ctx, func() { _ = n.Close() })

	n.logger.Info("node listening", zap.String("addr", ln.Addr().String()), zap.Strings("peers", n.cfg.Peers))
	n.app.Log(fmt.Sprintf("Node listening on %s", ln.Addr()))

	n.wg.Add(2)
	go n.acceptLoop()
	go n.connectToPeers()
	return nil
}

// Addr is the bound listen address, useful when the configured port is 0.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

func (n *Node) ConnectionCount() int {
	return n.registry.len()
}

// Close stops listening, closes every connection and waits for the node's
// goroutines, including in-flight SOS requests, to return.
func (n *Node) Close() error {
	n.startMu.Lock()
	started := n.started
	n.startMu.Unlock()
	if !started {
		return nil
	}

	var err error
	n.closeOnce.Do(func() {
		n.cancel()
		err = n.listener.Close()
		for _, pc := range n.registry.closeAll() {
			pc.close()
		}
		n.wg.Wait()
		n.logger.Info("node stopped")
	})
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			n.logger.Error("accept failed, acceptor stopped", zap.Error(err))
			n.app.Log(fmt.Sprintf("[ERROR] No longer accepting connections: %v", err))
			return
		}
		addr := conn.RemoteAddr().String()
		n.app.Log(fmt.Sprintf("Accepted connection from %s", addr))
		n.track(conn, addr)
	}
}

func (n *Node) connectToPeers() {
	defer n.wg.Done()
	if !sleepCtx(n.ctx, n.cfg.StartupDelay) {
		return
	}
	for _, addr := range n.cfg.Peers {
		if n.ctx.Err() != nil {
			return
		}
		conn, err := n.dial(addr)
		if err != nil {
			n.logger.Warn("dial failed", zap.String("peer", addr), zap.Error(err))
			n.app.Log(fmt.Sprintf("[WARNING] Could not connect to peer %s: %v", addr, err))
			continue
		}
		n.app.Log(fmt.Sprintf("Successfully connected to %s", addr))
		n.track(conn, addr)
	}
}

func (n *Node) dial(addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: n.cfg.DialTimeout}
	var lastErr error
	for attempt := 0; attempt <= n.cfg.DialRetries; attempt++ {
		if attempt > 0 && !sleepCtx(n.ctx, time.Duration(attempt)*dialBackoff) {
			break
		}
		conn, err := d.DialContext(n.ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		n.logger.Debug("dial attempt failed", zap.String("peer", addr), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, lastErr
}

// track registers conn before its handler starts, so a concurrent broadcast
// either sees a fully set-up connection or none at all.
func (n *Node) track(conn net.Conn, addr string) {
	if !n.connSem.TryAcquire(1) {
		n.logger.Warn("connection limit reached, rejecting", zap.String("peer", addr), zap.Int("limit", n.cfg.MaxConnections))
		n.app.Log(fmt.Sprintf("[WARNING] Connection limit reached, rejected %s", addr))
		_ = conn.Close()
		return
	}

	pc := newPeerConn(conn, addr, n.cfg.MaxPacketSize, n.cfg.WriteTimeout)
	if !n.registry.add(pc) {
		n.connSem.Release(1)
		_ = conn.Close()
		return
	}
	n.logger.Info("connection registered", zap.String("peer", addr), zap.Int("connections", n.registry.len()))

	n.wg.Add(1)
	go n.handle(pc)
}

// Submit originates a message from the local user and floods it to every
// connection.
func (n *Node) Submit(content string) dataType.MessagePacket {
	if content == "" {
		return dataType.MessagePacket{}
	}
	p := dataType.MessagePacket{ID: utils.NewMessageID(), Content: content}
	n.seen.Add(p.ID)
	n.broadcast(p, nil)
	return p
}

// broadcast encodes p once and writes it to every registered connection
// except origin. Delivery is best effort: a failed write is logged and the
// remaining connections still get the packet.
func (n *Node) broadcast(p dataType.MessagePacket, origin *peerConn) int {
	body, err := dataType.EncodePacket(p)
	if err != nil {
		n.logger.Error("encode failed", zap.String("id", p.ID), zap.Error(err))
		return 0
	}

	sent := 0
	for _, pc := range n.registry.snapshot() {
		if pc == origin {
			continue
		}
		if err := pc.send(body); err != nil {
			n.logger.Debug("send failed", zap.String("peer", pc.addr), zap.String("id", p.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

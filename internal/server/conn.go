package server

import (
	"net"
	"sync"
	"time"

	"meshnode/internal/utils"
)

// peerConn is one live TCP stream to a neighbour. The acceptor or connector
// creates it and its handler goroutine owns teardown.
type peerConn struct {
	conn   net.Conn
	addr   string
	reader *utils.PacketReader
	writer *utils.PacketWriter

	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newPeerConn(conn net.Conn, addr string, maxPacketSize int, writeTimeout time.Duration) *peerConn {
	return &peerConn{
		conn:         conn,
		addr:         addr,
		reader:       utils.NewPacketReader(conn, maxPacketSize),
		writer:       utils.NewPacketWriter(conn),
		writeTimeout: writeTimeout,
	}
}

// send writes one frame. Frames from concurrent broadcasts never interleave.
// A failed write leaves a partial frame behind, so the stream is shut and the
// read loop notices.
func (pc *peerConn) send(body []byte) error {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()

	if pc.writeTimeout > 0 {
		_ = pc.conn.SetWriteDeadline(time.Now().Add(pc.writeTimeout))
	}
	if err := pc.writer.WriteFrame(body); err != nil {
		pc.close()
		return err
	}
	return nil
}

func (pc *peerConn) close() {
	pc.closeOnce.Do(func() {
		_ = pc.conn.Close()
	})
}

// registry is the set of connections a broadcast may target.
type registry struct {
	mu     sync.Mutex
	conns  map[*peerConn]struct{}
	closed bool
}

func newRegistry() *registry {
	return &registry{conns: make(map[*peerConn]struct{})}
}

// add reports false once the registry has been closed.
func (r *registry) add(pc *peerConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.conns[pc] = struct{}{}
	return true
}

func (r *registry) remove(pc *peerConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[pc]; !ok {
		return false
	}
	delete(r.conns, pc)
	return true
}

func (r *registry) snapshot() []*peerConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*peerConn, 0, len(r.conns))
	for pc := range r.conns {
		out = append(out, pc)
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// closeAll refuses further registrations and returns what was registered.
func (r *registry) closeAll() []*peerConn {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.snapshot()
}

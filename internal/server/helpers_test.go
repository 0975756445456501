package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"meshnode/internal/config"
	"meshnode/internal/dataType"
	"meshnode/internal/summarize"
	"meshnode/internal/utils"
)

const waitFor = 3 * time.Second

// recordingApp stands in for the presentation layer.
type recordingApp struct {
	mu        sync.Mutex
	lines     []string
	shutdowns int
}

func (a *recordingApp) Log(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = append(a.lines, text)
}

func (a *recordingApp) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdowns++
}

func (a *recordingApp) count(prefix string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, l := range a.lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func (a *recordingApp) countSuffix(prefix, suffix string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, l := range a.lines {
		if strings.HasPrefix(l, prefix) && strings.HasSuffix(l, suffix) {
			n++
		}
	}
	return n
}

func (a *recordingApp) shutdownCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shutdowns
}

func testConfig(peers ...string) *config.MainConfig {
	cfg := config.DefaultConfig()
	cfg.BindHost = "127.0.0.1"
	cfg.Port = 0
	cfg.StartupDelay = 0
	cfg.DialTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.Peers = peers
	return &cfg
}

func startNodeWith(t *testing.T, cfg *config.MainConfig, s summarize.Summarizer) (*Node, *recordingApp) {
	t.Helper()
	app := &recordingApp{}
	n := NewNode(cfg, app, s, zaptest.NewLogger(t))
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { _ = n.Close() })
	return n, app
}

func startNode(t *testing.T, peers ...string) (*Node, *recordingApp) {
	t.Helper()
	return startNodeWith(t, testConfig(peers...), nil)
}

func waitConnections(t *testing.T, n *Node, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return n.ConnectionCount() == want }, waitFor, 5*time.Millisecond,
		"expected %d connections", want)
}

// rawPeer is a hand-driven connection to a node under test.
type rawPeer struct {
	conn net.Conn
	r    *utils.PacketReader
	w    *utils.PacketWriter
}

func dialRaw(t *testing.T, n *Node) *rawPeer {
	t.Helper()
	before := n.ConnectionCount()
	conn, err := net.Dial("tcp", n.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	waitConnections(t, n, before+1)
	return &rawPeer{
		conn: conn,
		r:    utils.NewPacketReader(conn, 1<<20),
		w:    utils.NewPacketWriter(conn),
	}
}

func (p *rawPeer) send(t *testing.T, id, content string) {
	t.Helper()
	body, err := dataType.EncodePacket(dataType.MessagePacket{ID: id, Content: content})
	require.NoError(t, err)
	require.NoError(t, p.w.WriteFrame(body))
}

func (p *rawPeer) expect(t *testing.T) dataType.MessagePacket {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(waitFor)))
	pkt, err := p.r.ReadPacket()
	require.NoError(t, err)
	return pkt
}

func (p *rawPeer) expectClosed(t *testing.T) {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, err := p.r.ReadPacket()
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatalf("connection was not closed by the node: %v", err)
	}
}

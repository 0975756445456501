package server

import (
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"
	"meshnode/internal/action"
	"meshnode/internal/dataType"
	"meshnode/internal/summarize"
	"meshnode/internal/utils"
)

// handle is the read loop of one connection. Any read or decode error ends
// the loop; teardown then runs exactly once.
func (n *Node) handle(pc *peerConn) {
	defer n.wg.Done()
	defer n.teardown(pc)

	for {
		p, err := pc.reader.ReadPacket()
		if err != nil {
			n.logReadError(pc, err)
			return
		}
		n.process(pc, p)
	}
}

func (n *Node) logReadError(pc *peerConn, err error) {
	switch {
	case errors.Is(err, dataType.ErrMalformedPacket), errors.Is(err, dataType.ErrEmptyPacket):
		n.logger.Warn("undecodable packet, dropping connection", zap.String("peer", pc.addr), zap.Error(err))
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		n.logger.Debug("connection ended", zap.String("peer", pc.addr), zap.Error(err))
	default:
		n.logger.Info("read failed", zap.String("peer", pc.addr), zap.Error(err))
	}
}

func (n *Node) teardown(pc *peerConn) {
	n.registry.remove(pc)
	pc.close()
	n.connSem.Release(1)
	n.logger.Info("connection closed", zap.String("peer", pc.addr), zap.Int("connections", n.registry.len()))
	n.app.Log(fmt.Sprintf("Connection with %s closed.", pc.addr))
}

// process handles a decoded packet. Already-seen ids are dropped silently.
func (n *Node) process(origin *peerConn, p dataType.MessagePacket) {
	if !n.seen.Add(p.ID) {
		n.logger.Debug("duplicate packet", zap.String("id", p.ID))
		return
	}

	kind := action.Classify(p.Content)
	n.logger.Debug("packet received", zap.String("id", p.ID), zap.String("peer", origin.addr), zap.Stringer("action", kind))

	switch kind {
	case action.SOS:
		n.app.Log("[AI] Received SOS command. Processing...")
		n.dispatchSOS(p.Content)
	case action.Quit:
		n.app.Log("[SYSTEM] Quit command received. Shutting down.")
		n.app.Shutdown()
	default:
		n.app.Log(fmt.Sprintf("[RECV] (%s): %s", p.ShortID(), p.Content))
		n.broadcast(p, origin)
	}
}

// dispatchSOS runs the summarizer off the read loop. At most
// MaxConcurrentSOS requests talk to the summarizer at once; the rest wait.
func (n *Node) dispatchSOS(content string) {
	text := action.SOSText(content)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.sosSem.Acquire(n.ctx, 1); err != nil {
			return
		}
		defer n.sosSem.Release(1)
		n.processSOS(text)
	}()
}

func (n *Node) processSOS(text string) {
	if n.summarizer == nil {
		n.app.Log("[AI ERROR] Could not process command: no summarizer configured")
		return
	}

	reply, err := n.summarizer.Summarize(n.ctx, dataType.SOSInstruction, text)
	if err != nil {
		n.logger.Warn("summarizer failed", zap.Error(err))
		n.app.Log(fmt.Sprintf("[AI ERROR] Could not process command: %v", err))
		return
	}

	content := summarize.FormatReport(reply)
	if action.Classify(content) != action.Chat {
		// Deliberately not sent verbatim: a reply that reads as !quit or !sos
		// would make every neighbour act on it.
		n.app.Log("[AI ERROR] Could not process command: reply is an in-band command")
		return
	}

	p := dataType.MessagePacket{ID: utils.NewMessageID(), Content: content}
	n.seen.Add(p.ID)

	n.app.Log(fmt.Sprintf("[AI RESULT] (%s): \n%s", p.ShortID(), content))
	n.app.Log("[AI] Task complete. Broadcasting smart beacon.")
	sent := n.broadcast(p, nil)
	n.logger.Info("sos beacon broadcast", zap.String("id", p.ID), zap.Int("peers", sent))
}

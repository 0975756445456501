package utils

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/libp2p/go-msgio"
	"meshnode/internal/dataType"
)

// PacketReader reads length-prefixed packets from a stream. A frame is a
// 4 byte big-endian length followed by the JSON packet body, so partial and
// coalesced TCP reads never split or merge packets.
type PacketReader struct {
	r msgio.ReadCloser
}

func NewPacketReader(r io.Reader, maxSize int) *PacketReader {
	return &PacketReader{r: msgio.NewReaderSize(r, maxSize)}
}

// ReadPacket blocks for the next frame. Transport errors are returned as is,
// undecodable frames wrap dataType.ErrMalformedPacket or ErrEmptyPacket.
func (pr *PacketReader) ReadPacket() (dataType.MessagePacket, error) {
	body, err := pr.r.ReadMsg()
	if err != nil {
		return dataType.MessagePacket{}, err
	}
	defer pr.r.ReleaseMsg(body)
	return dataType.DecodePacket(body)
}

// PacketWriter frames already-encoded packet bodies onto a stream.
type PacketWriter struct {
	w msgio.WriteCloser
}

func NewPacketWriter(w io.Writer) *PacketWriter {
	return &PacketWriter{w: msgio.NewWriter(w)}
}

func (pw *PacketWriter) WriteFrame(body []byte) error {
	if err := pw.w.WriteMsg(body); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// NewMessageID mints the globally unique id of a new packet.
func NewMessageID() string {
	return uuid.New().String()
}

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/gopacket/tcpassembly"
)

// Frame is one client-to-server websocket text message recovered from a
// capture.
type Frame struct {
	Time time.Time
	Flow string
	Text string
}

// PcapStats summarises a capture read.
type PcapStats struct {
	Packets int
	Streams int
	Frames  int
	Gaps    int
}

// ReadPcapFile opens path and calls ReadPcap on it.
func ReadPcapFile(ctx context.Context, path string, port int, fn func(Frame) error) (PcapStats, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return PcapStats{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()
	return ReadPcap(ctx, f, port, fn)
}

// ReadPcap replays a libpcap capture of simulator sessions. TCP segments
// sent to port are reassembled per flow, the HTTP upgrade is skipped and
// each masked client text frame is passed to fn in capture order. A gap in
// a flow's sequence space abandons that flow. Returning an error from fn
// stops the read.
func ReadPcap(ctx context.Context, r io.Reader, port int, fn func(Frame) error) (PcapStats, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return PcapStats{}, fmt.Errorf("read pcap header: %w", err)
	}

	rp := &replay{fn: fn}
	assembler := tcpassembly.NewAssembler(tcpassembly.NewStreamPool(rp))
	// Out-of-order data is never held back: a segment past the expected
	// sequence number is delivered at once as a skip.
	assembler.MaxBufferedPagesPerConnection = 1

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	for {
		if err := ctx.Err(); err != nil {
			return rp.stats, err
		}
		packet, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rp.stats, fmt.Errorf("read packet %d: %w", rp.stats.Packets+1, err)
		}
		rp.stats.Packets++

		tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if !ok || int(tcp.DstPort) != port {
			continue
		}
		var netFlow gopacket.Flow
		if nl := packet.NetworkLayer(); nl != nil {
			netFlow = nl.NetworkFlow()
		}
		assembler.AssembleWithTimestamp(netFlow, tcp, packet.Metadata().Timestamp)
		if rp.err != nil {
			return rp.stats, rp.err
		}
	}
	assembler.FlushAll()
	return rp.stats, rp.err
}

// replay is the tcpassembly.StreamFactory for one ReadPcap call. The
// assembler calls back synchronously, so no locking is needed.
type replay struct {
	fn    func(Frame) error
	stats PcapStats
	err   error
}

func (rp *replay) New(netFlow, tcpFlow gopacket.Flow) tcpassembly.Stream {
	rp.stats.Streams++
	return &wsStream{replay: rp, flow: netFlow.String() + " " + tcpFlow.String()}
}

// emit hands one text message to the callback unless an earlier call failed.
func (rp *replay) emit(f Frame) {
	if rp.err != nil {
		return
	}
	rp.stats.Frames++
	rp.err = rp.fn(f)
}

// wsStream decodes the client side of one websocket connection.
type wsStream struct {
	replay *replay
	flow   string

	buf       []byte
	upgraded  bool
	fragments []byte
	inMessage bool
	textMsg   bool
	broken    bool
	closed    bool
}

// Reassembled implements tcpassembly.Stream.
func (s *wsStream) Reassembled(rs []tcpassembly.Reassembly) {
	for _, r := range rs {
		if s.broken || s.closed {
			return
		}
		// Skip is -1 when the capture started mid-connection.
		if r.Skip > 0 {
			s.broken = true
			s.replay.stats.Gaps++
			opsf("pcap flow %s abandoned: missing %d bytes", s.flow, r.Skip)
			return
		}
		if len(r.Bytes) == 0 {
			continue
		}
		s.buf = append(s.buf, r.Bytes...)
		if err := s.drain(r.Seen); err != nil {
			s.broken = true
			opsf("pcap flow %s abandoned: %v", s.flow, err)
			return
		}
	}
}

// ReassemblyComplete implements tcpassembly.Stream.
func (s *wsStream) ReassemblyComplete() {
	if len(s.buf) > 0 && !s.broken && !s.closed {
		diagf("pcap flow %s ended with %d undecoded bytes", s.flow, len(s.buf))
	}
	s.buf = nil
}

// drain skips the HTTP upgrade and emits every complete message in the
// buffer.
func (s *wsStream) drain(seen time.Time) error {
	if !s.upgraded {
		if len(s.buf) < 4 {
			return nil
		}
		if bytes.HasPrefix(s.buf, []byte("GET ")) {
			end := bytes.Index(s.buf, []byte("\r\n\r\n"))
			if end < 0 {
				return nil
			}
			s.buf = s.buf[end+4:]
		}
		// Otherwise the capture started after the handshake.
		s.upgraded = true
	}

	for !s.closed {
		f, n, err := nextFrame(s.buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		s.buf = s.buf[n:]
		s.handle(f, seen)
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return nil
}

func (s *wsStream) handle(f ws.Frame, seen time.Time) {
	op := f.Header.OpCode
	switch {
	case op == ws.OpClose:
		s.closed = true
		return
	case op == ws.OpContinuation && s.inMessage:
		s.fragments = append(s.fragments, f.Payload...)
	case op == ws.OpText || op == ws.OpBinary:
		s.inMessage = true
		s.textMsg = op == ws.OpText
		s.fragments = append(s.fragments[:0], f.Payload...)
	default:
		// Control frames (ping/pong) may interleave with fragments.
		return
	}
	if f.Header.Fin && s.inMessage {
		if s.textMsg {
			s.replay.emit(Frame{Time: seen, Flow: s.flow, Text: string(s.fragments)})
		}
		s.inMessage = false
		s.fragments = s.fragments[:0]
	}
}

// nextFrame decodes the first frame in b and unmasks its payload. n is zero
// while the frame is incomplete.
func nextFrame(b []byte) (f ws.Frame, n int, err error) {
	r := bytes.NewReader(b)
	f.Header, err = ws.ReadHeader(r)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ws.Frame{}, 0, nil
	}
	if err != nil {
		return ws.Frame{}, 0, fmt.Errorf("bad frame header: %w", err)
	}
	if f.Header.Length > int64(r.Len()) {
		return ws.Frame{}, 0, nil
	}

	f.Payload = make([]byte, f.Header.Length)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return ws.Frame{}, 0, err
	}
	if f.Header.Masked {
		ws.Cipher(f.Payload, f.Header.Mask, 0)
	}
	return f, len(b) - r.Len(), nil
}

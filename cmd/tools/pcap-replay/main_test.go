package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/telemetry"
	"github.com/banshee-data/highway.planner/internal/testutil"
)

const telemetryFrame = `42["telemetry",{"x":909.48,"y":1128.67,"s":124.83,"d":6.16,"yaw":0,"speed":44.74,` +
	`"previous_path_x":[910.1,910.5],"previous_path_y":[1128.7,1128.7],"end_path_s":125.6,"end_path_d":6.1,` +
	`"sensor_fusion":[[1,1051.7,1145.7,17.9,0.5,266.9,2.2]]}]`

func TestReplayerRunPerFlow(t *testing.T) {
	database := testutil.NewTestDB(t)
	r := newReplayer(database, config.DefaultTuningConfig())
	ctx := context.Background()

	frames := []telemetry.Frame{
		{Flow: "a", Text: telemetryFrame},
		{Flow: "b", Text: telemetryFrame},
		{Flow: "a", Text: `42["telemetry",null]`},
		{Flow: "a", Text: `42["telemetry",{"speed":"fast"}]`},
		{Flow: "a", Text: `2`},
		{Flow: "a", Text: telemetryFrame},
	}
	for _, f := range frames {
		if err := r.handleFrame(ctx, f); err != nil {
			t.Fatalf("handleFrame(%q) failed: %v", f.Text, err)
		}
	}

	res, err := r.result(ctx)
	if err != nil {
		t.Fatalf("result failed: %v", err)
	}
	if res.Frames != 6 || res.Malformed != 1 {
		t.Errorf("frames=%d malformed=%d", res.Frames, res.Malformed)
	}
	if len(res.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %+v", res.Runs)
	}
	if res.Runs[0].RunID != res.Flows["a"] || res.Runs[0].Cycles != 2 {
		t.Errorf("flow a summary = %+v", res.Runs[0])
	}
	if res.Runs[1].Cycles != 1 {
		t.Errorf("flow b summary = %+v", res.Runs[1])
	}

	runs, err := database.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	for _, run := range runs {
		if !strings.HasPrefix(run.Label, "pcap ") {
			t.Errorf("run label = %q", run.Label)
		}
	}

	var out bytes.Buffer
	printResult(&out, res)
	for _, want := range []string{"Run " + res.Flows["a"], "cycles=2", "KL"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

// writeCapture writes a one-flow capture: handshake then the given client
// text frames, all sent to port 4567.
func writeCapture(t *testing.T, path string, texts ...string) {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("WriteFileHeader failed: %v", err)
	}

	ts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	seq := uint32(1000)
	send := func(syn bool, payload []byte) {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: net.IP{10, 0, 0, 2}, DstIP: net.IP{10, 0, 0, 1}}
		tcp := &layers.TCP{SrcPort: 50123, DstPort: 4567, Seq: seq, SYN: syn, ACK: !syn, PSH: len(payload) > 0, Window: 65535}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatal(err)
		}
		out := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(out, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
			t.Fatalf("SerializeLayers failed: %v", err)
		}
		ts = ts.Add(20 * time.Millisecond)
		data := out.Bytes()
		if err := w.WritePacket(gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}, data); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
		if syn {
			seq++
		}
		seq += uint32(len(payload))
	}

	send(true, nil)
	send(false, []byte("GET / HTTP/1.1\r\nHost: localhost:4567\r\nUpgrade: websocket\r\n\r\n"))
	for _, text := range texts {
		send(false, maskedTextFrame([]byte(text)))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write capture: %v", err)
	}
}

func maskedTextFrame(payload []byte) []byte {
	return ws.MustCompileFrame(ws.MaskFrameWith(ws.NewTextFrame(payload), [4]byte{0x0a, 0x0b, 0x0c, 0x0d}))
}

func TestRunReplayFromCapture(t *testing.T) {
	database := testutil.NewTestDB(t)
	path := filepath.Join(t.TempDir(), "session.pcap")
	writeCapture(t, path, telemetryFrame, telemetryFrame, telemetryFrame)

	res, err := runReplay(context.Background(), Config{PCAPFile: path, Port: 4567}, database, config.DefaultTuningConfig())
	if err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if res.Capture.Frames != 3 || res.Frames != 3 {
		t.Errorf("capture=%+v frames=%d", res.Capture, res.Frames)
	}
	if len(res.Runs) != 1 || res.Runs[0].Cycles != 3 {
		t.Fatalf("runs = %+v", res.Runs)
	}

	if _, err := runReplay(context.Background(), Config{PCAPFile: filepath.Join(t.TempDir(), "none.pcap")}, database, config.DefaultTuningConfig()); err == nil {
		t.Error("expected error for a missing capture")
	}
}

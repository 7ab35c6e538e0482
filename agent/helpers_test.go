package agent

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fleetlink/config"
	"fleetlink/protocol"
)

// groundStub 测试用地面中心替身：接受载具连接、记录收到的帧，
// 默认对 response 帧自动回 ack（可通过 withholdAcks 关闭以测试重发）。
type groundStub struct {
	t  *testing.T
	ln net.Listener

	withholdAcks atomic.Bool

	mu     sync.Mutex
	conns  []net.Conn
	frames []protocol.Frame
}

func newGroundStub(t *testing.T) *groundStub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	g := &groundStub{t: t, ln: ln}
	go g.acceptLoop()
	t.Cleanup(g.close)
	return g
}

func (g *groundStub) endpoint() string {
	port := g.ln.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("tcp://127.0.0.1:%d", port)
}

func (g *groundStub) acceptLoop() {
	for {
		c, err := g.ln.Accept()
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conns = append(g.conns, c)
		g.mu.Unlock()
		go g.readLoop(c)
	}
}

func (g *groundStub) readLoop(c net.Conn) {
	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 4096), protocol.MaxFrameSize)
	for sc.Scan() {
		f, err := protocol.DecodeFrame(sc.Bytes())
		if err != nil {
			continue
		}
		g.mu.Lock()
		g.frames = append(g.frames, f)
		g.mu.Unlock()
		if f.Kind == protocol.KindResponse && !g.withholdAcks.Load() {
			g.writeFrame(c, protocol.NewAck(f.RequestID))
		}
	}
}

func (g *groundStub) writeFrame(c net.Conn, f protocol.Frame) {
	b, err := protocol.EncodeFrame(f)
	if err != nil {
		g.t.Errorf("encode: %v", err)
		return
	}
	g.mu.Lock()
	_, _ = c.Write(b)
	g.mu.Unlock()
}

// send 向最近一条载具连接写入帧。
func (g *groundStub) send(f protocol.Frame) {
	g.mu.Lock()
	if len(g.conns) == 0 {
		g.mu.Unlock()
		g.t.Error("no vehicle connection")
		return
	}
	c := g.conns[len(g.conns)-1]
	g.mu.Unlock()
	g.writeFrame(c, f)
}

// dropConnections 关闭全部已接受连接（模拟链路中断，监听保持）。
func (g *groundStub) dropConnections() {
	g.mu.Lock()
	for _, c := range g.conns {
		_ = c.Close()
	}
	g.conns = nil
	g.mu.Unlock()
}

// connCount 返回累计接受的连接数。
func (g *groundStub) connCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// framesOfKind 返回按到达顺序收到的指定类别帧。
func (g *groundStub) framesOfKind(kind protocol.FrameKind) []protocol.Frame {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []protocol.Frame
	for _, f := range g.frames {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func (g *groundStub) close() {
	_ = g.ln.Close()
	g.dropConnections()
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		TickInterval: config.Duration(20 * time.Millisecond),
		DialTimeout:  config.Duration(2 * time.Second),
		SendTimeout:  config.Duration(time.Second),
	}
}

func testVehicleConfig(id, center string) config.VehicleConfig {
	ackRetries := 3
	return config.VehicleConfig{
		VehicleID:             id,
		Center:                center,
		AckTimeout:            config.Duration(100 * time.Millisecond),
		AckMaxRetries:         &ackRetries,
		ReconnectInitialDelay: config.Duration(50 * time.Millisecond),
		ReconnectMaxDelay:     config.Duration(200 * time.Millisecond),
	}
}

// waitUntil 轮询等待条件成立。
func waitUntil(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	end := time.Now().Add(d)
	for time.Now().Before(end) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting: %s", msg)
}

func sampleTelemetry(id string, seq int64) protocol.Telemetry {
	return protocol.Telemetry{
		UavID:       id,
		TimestampNs: seq,
		Position:    protocol.Position{Lat: 30.5, Lon: 114.3, Alt: 100 + float64(seq)},
		Battery:     protocol.Battery{Percent: 90, VoltageMv: 22000},
		GPS:         protocol.GPS{FixType: 3, NumSat: 12},
		LinkQuality: 0.9,
		FlightMode:  "AUTO",
	}
}

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"fleetlink/protocol"
)

// main 启动地面中心模拟器。
// 使用说明：
// - 监听 TCP，接受节点代理的载具连接（按行分隔的 JSON 帧）
// - 打印收到的 hello/telemetry/event
// - 按固定间隔向已知载具下发带 request_id 的指令
// - 收到 response 后回 ack（--withhold_acks 可关闭，用于验证重发）
func main() {
	listen := flag.String("listen", "127.0.0.1:7700", "listen address")
	cmdInterval := flag.Duration("cmd_interval", 5*time.Second, "command issue interval (0 disables)")
	withholdAcks := flag.Bool("withhold_acks", false, "do not ack responses (retry testing)")
	flag.Parse()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		panic(err)
	}
	fmt.Printf("groundsim listening on %s withhold_acks=%v\n", *listen, *withholdAcks)

	sim := &groundSim{
		withholdAcks: *withholdAcks,
		vehicles:     make(map[string]net.Conn),
	}
	if *cmdInterval > 0 {
		go sim.commandLoop(*cmdInterval)
	}

	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		go sim.serve(c)
	}
}

type groundSim struct {
	withholdAcks bool

	mu       sync.Mutex
	vehicles map[string]net.Conn
	seq      int
}

// serve 处理一条载具连接：逐行解析帧并按类别响应。
func (s *groundSim) serve(c net.Conn) {
	defer c.Close()
	var vehicleID string
	defer func() {
		if vehicleID != "" {
			s.mu.Lock()
			if s.vehicles[vehicleID] == c {
				delete(s.vehicles, vehicleID)
			}
			s.mu.Unlock()
			fmt.Printf("vehicle %s disconnected\n", vehicleID)
		}
	}()

	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 4096), protocol.MaxFrameSize)
	for sc.Scan() {
		f, err := protocol.DecodeFrame(sc.Bytes())
		if err != nil {
			fmt.Printf("bad frame: %v\n", err)
			continue
		}
		switch f.Kind {
		case protocol.KindHello:
			vehicleID = f.VehicleID
			s.mu.Lock()
			s.vehicles[vehicleID] = c
			s.mu.Unlock()
			fmt.Printf("vehicle %s connected\n", vehicleID)

		case protocol.KindTelemetry:
			var tm protocol.Telemetry
			if err := json.Unmarshal(f.Payload, &tm); err != nil {
				fmt.Printf("bad telemetry from %s: %v\n", f.VehicleID, err)
				continue
			}
			fmt.Printf("telemetry %s ts=%d pos=(%.5f,%.5f,%.1f) bat=%.0f%% mode=%s\n",
				tm.UavID, tm.TimestampNs, tm.Position.Lat, tm.Position.Lon, tm.Position.Alt,
				tm.Battery.Percent, tm.FlightMode)

		case protocol.KindEvent:
			_ = json.NewEncoder(os.Stdout).Encode(f)

		case protocol.KindResponse:
			var rp protocol.ResponsePayload
			_ = json.Unmarshal(f.Payload, &rp)
			fmt.Printf("response %s request_id=%s status=%s\n", f.VehicleID, f.RequestID, rp.Status)
			if !s.withholdAcks {
				s.write(c, protocol.NewAck(f.RequestID))
			}

		default:
			fmt.Printf("unexpected frame kind %q from %s\n", f.Kind, f.VehicleID)
		}
	}
}

// commandLoop 周期性向每个在线载具下发一条带 request_id 的指令。
func (s *groundSim) commandLoop(interval time.Duration) {
	for range time.Tick(interval) {
		s.mu.Lock()
		conns := make(map[string]net.Conn, len(s.vehicles))
		for id, c := range s.vehicles {
			conns[id] = c
		}
		s.seq++
		seq := s.seq
		s.mu.Unlock()

		for id, c := range conns {
			params, _ := json.Marshal(map[string]any{"seq": seq})
			payload, _ := json.Marshal(protocol.CommandPayload{Action: "ping", Params: params})
			f := protocol.Frame{
				Kind:      protocol.KindCommand,
				VehicleID: id,
				RequestID: fmt.Sprintf("gs-%d", seq),
				Payload:   payload,
			}
			fmt.Printf("command -> %s request_id=%s\n", id, f.RequestID)
			s.write(c, f)
		}
	}
}

func (s *groundSim) write(c net.Conn, f protocol.Frame) {
	b, err := protocol.EncodeFrame(f)
	if err != nil {
		return
	}
	s.mu.Lock()
	_, _ = c.Write(b)
	s.mu.Unlock()
}

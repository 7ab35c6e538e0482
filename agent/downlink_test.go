package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fleetlink/protocol"
)

// startTestSession 启动一个连到替身中心的载具会话。
func startTestSession(t *testing.T, g *groundStub, handlers Handlers) *VehicleSession {
	t.Helper()
	v, err := NewVehicleSession(testVehicleConfig("uav1", g.endpoint()), testAgentConfig(), handlers, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(v.Stop)
	waitUntil(t, 2*time.Second, func() bool { return g.connCount() == 1 }, "vehicle connected")
	return v
}

// TestCommandDispatchAndAckClosesLoop 验证指令分发、回执上行与 ack 闭环。
func TestCommandDispatchAndAckClosesLoop(t *testing.T) {
	g := newGroundStub(t)

	var (
		mu   sync.Mutex
		got  []protocol.CommandPayload
		reqs []string
	)
	v := startTestSession(t, g, Handlers{
		OnCommand: func(vehicleID, requestID string, cmd protocol.CommandPayload) error {
			mu.Lock()
			got = append(got, cmd)
			reqs = append(reqs, requestID)
			mu.Unlock()
			return nil
		},
	})

	g.send(protocol.Frame{
		Kind:      protocol.KindCommand,
		VehicleID: "uav1",
		RequestID: "req-1",
		Payload:   json.RawMessage(`{"action":"takeoff","params":{"alt":50}}`),
	})

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "command dispatched")
	mu.Lock()
	if got[0].Action != "takeoff" || reqs[0] != "req-1" {
		t.Fatalf("cmd=%+v req=%v", got[0], reqs)
	}
	mu.Unlock()

	waitUntil(t, 2*time.Second, func() bool {
		return len(g.framesOfKind(protocol.KindResponse)) == 1
	}, "response sent upstream")
	resp := g.framesOfKind(protocol.KindResponse)[0]
	if resp.RequestID != "req-1" || resp.VehicleID != "uav1" {
		t.Fatalf("response=%+v", resp)
	}
	var rp protocol.ResponsePayload
	if err := json.Unmarshal(resp.Payload, &rp); err != nil {
		t.Fatal(err)
	}
	if rp.Status != "ok" || rp.Of != protocol.KindCommand {
		t.Fatalf("payload=%+v", rp)
	}

	// 替身自动 ack，确认闭环随之关闭
	waitUntil(t, 2*time.Second, func() bool { return v.Health().PendingAcks == 0 }, "ack closes pending entry")
}

// TestHandlerErrorReportedInResponse 验证处理器失败只体现在回执中，接收循环继续。
func TestHandlerErrorReportedInResponse(t *testing.T) {
	g := newGroundStub(t)

	var calls int
	var mu sync.Mutex
	v := startTestSession(t, g, Handlers{
		OnMission: func(vehicleID, requestID string, m protocol.MissionPayload) error {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				return errors.New("waypoint out of geofence")
			}
			return nil
		},
	})

	g.send(protocol.Frame{
		Kind:      protocol.KindMission,
		RequestID: "m-1",
		Payload:   json.RawMessage(`{"mission_id":"bad","items":[]}`),
	})
	g.send(protocol.Frame{
		Kind:      protocol.KindMission,
		RequestID: "m-2",
		Payload:   json.RawMessage(`{"mission_id":"good","items":[]}`),
	})

	waitUntil(t, 2*time.Second, func() bool {
		return len(g.framesOfKind(protocol.KindResponse)) == 2
	}, "both responses sent")

	responses := g.framesOfKind(protocol.KindResponse)
	var first, second protocol.ResponsePayload
	_ = json.Unmarshal(responses[0].Payload, &first)
	_ = json.Unmarshal(responses[1].Payload, &second)
	if first.Status != "error" || first.Error == "" {
		t.Fatalf("first=%+v", first)
	}
	if second.Status != "ok" {
		t.Fatalf("second=%+v", second)
	}
	waitUntil(t, 2*time.Second, func() bool { return v.Health().PendingAcks == 0 }, "both acked")
}

// TestUnknownKindCountedNotFatal 验证未知类别只计数，后续帧照常处理。
func TestUnknownKindCountedNotFatal(t *testing.T) {
	g := newGroundStub(t)

	var mu sync.Mutex
	commands := 0
	v := startTestSession(t, g, Handlers{
		OnCommand: func(vehicleID, requestID string, cmd protocol.CommandPayload) error {
			mu.Lock()
			commands++
			mu.Unlock()
			return nil
		},
	})

	g.send(protocol.Frame{Kind: "weird", Payload: json.RawMessage(`{}`)})
	g.send(protocol.Frame{Kind: protocol.KindCommand, Payload: json.RawMessage(`{"action":"land"}`)})

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return commands == 1
	}, "command after unknown kind")
	if v.Health().Counters.UnknownFrames != 1 {
		t.Fatalf("unknown=%d", v.Health().Counters.UnknownFrames)
	}
}

// TestMalformedPayloadRejectedWithErrorResponse 验证载荷解析失败计数并以 error 回执。
func TestMalformedPayloadRejectedWithErrorResponse(t *testing.T) {
	g := newGroundStub(t)
	v := startTestSession(t, g, Handlers{})

	g.send(protocol.Frame{
		Kind:      protocol.KindCommand,
		RequestID: "bad-1",
		Payload:   json.RawMessage(`"not an object"`),
	})

	waitUntil(t, 2*time.Second, func() bool {
		return len(g.framesOfKind(protocol.KindResponse)) == 1
	}, "error response sent")
	var rp protocol.ResponsePayload
	_ = json.Unmarshal(g.framesOfKind(protocol.KindResponse)[0].Payload, &rp)
	if rp.Status != "error" {
		t.Fatalf("payload=%+v", rp)
	}
	if v.Health().Counters.ParseErrors != 1 {
		t.Fatalf("parse errors=%d", v.Health().Counters.ParseErrors)
	}
}

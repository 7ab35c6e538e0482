package status

import (
	"encoding/json"
	"testing"
)

// TestStatusParseAndJSON 验证 status 系列枚举的解析与 JSON 编解码。
func TestStatusParseAndJSON(t *testing.T) {
	check := func(v any, out any) {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(b, out); err != nil {
			t.Fatal(err)
		}
	}

	for _, v := range []string{"Disconnected", "Connecting", "Connected"} {
		if _, err := ParseLinkState(v); err != nil {
			t.Fatalf("link parse %q: %v", v, err)
		}
	}
	for _, v := range []string{"Idle", "Reconnecting", "Failed"} {
		if _, err := ParseReconnectPhase(v); err != nil {
			t.Fatalf("reconnect parse %q: %v", v, err)
		}
	}
	for _, v := range []string{"Created", "Running", "Stopped"} {
		if _, err := ParseAgentStatus(v); err != nil {
			t.Fatalf("agent parse %q: %v", v, err)
		}
	}

	ls, err := ParseLinkState("Connected")
	if err != nil {
		t.Fatal(err)
	}
	var ls2 LinkState
	check(ls, &ls2)
	if ls2 != LinkConnected {
		t.Fatalf("ls2=%s", ls2)
	}

	rp, err := ParseReconnectPhase("Reconnecting")
	if err != nil {
		t.Fatal(err)
	}
	var rp2 ReconnectPhase
	check(rp, &rp2)
	if rp2 != ReconnectRunning {
		t.Fatalf("rp2=%s", rp2)
	}

	as, err := ParseAgentStatus("Running")
	if err != nil {
		t.Fatal(err)
	}
	var as2 AgentStatus
	check(as, &as2)
	if as2 != AgentRunning {
		t.Fatalf("as2=%s", as2)
	}

	if _, err := ParseLinkState("X"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseReconnectPhase("X"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseAgentStatus("X"); err == nil {
		t.Fatalf("expected error")
	}

	var bad LinkState
	if err := json.Unmarshal([]byte(`"X"`), &bad); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	var badNum LinkState
	if err := json.Unmarshal([]byte(`123`), &badNum); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	var bad2 ReconnectPhase
	if err := json.Unmarshal([]byte(`"X"`), &bad2); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	var bad3 AgentStatus
	if err := json.Unmarshal([]byte(`123`), &bad3); err == nil {
		t.Fatalf("expected unmarshal error")
	}

	_ = LinkDisconnected.String()
	_ = ReconnectIdle.String()
	_ = AgentCreated.String()
}

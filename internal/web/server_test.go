package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/switch-node/internal/logic"
	"github.com/sweeney/switch-node/internal/status"
	"github.com/sweeney/switch-node/internal/version"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	return newTestServerWithConfig(t, status.Config{
		PollMs:      1000,
		HoldMs:      5000,
		Broker:      "tcp://192.168.1.200:1883",
		TopicPrefix: "home/switch-node",
		HTTPPort:    "80",
		Storage:     "file",
	})
}

func newTestServerWithConfig(t *testing.T, cfg status.Config) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func getBody(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Observe(logic.Report{
		State:    logic.StateIdle,
		Channels: [logic.NumChannels]bool{true, false, false},
		NodeID:   5,
	})
	tr.SetMQTTConnected(true)
	tr.SetConfigOutcome("valid")

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.State != "IDLE" {
		t.Errorf("State: got %q, want IDLE", sj.Status.State)
	}
	if want := []string{"ON", "OFF", "OFF"}; strings.Join(sj.Status.Channels, ",") != strings.Join(want, ",") {
		t.Errorf("Channels: got %v, want %v", sj.Status.Channels, want)
	}
	if sj.Status.NodeID != 5 || !sj.Status.Included {
		t.Errorf("NodeID: got %d included=%v", sj.Status.NodeID, sj.Status.Included)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if sj.Status.ConfigOutcome != "valid" {
		t.Errorf("ConfigOutcome: got %q, want valid", sj.Status.ConfigOutcome)
	}
	if sj.Status.Config.HoldMs != 5000 {
		t.Errorf("Config.HoldMs: got %d, want 5000", sj.Status.Config.HoldMs)
	}
}

func TestJSONUnknownStateBeforeFirstReport(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)

	if sj.Status.State != "UNKNOWN" {
		t.Errorf("State before first report: got %q, want UNKNOWN", sj.Status.State)
	}
	if sj.Status.Included {
		t.Error("expected Included=false before first report")
	}
}

func TestVersionEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/version.json")
	if err != nil {
		t.Fatalf("GET /version.json: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var vj VersionJSON
	if err := json.NewDecoder(resp.Body).Decode(&vj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if vj.Version.Version != version.String() {
		t.Errorf("Version: got %q, want %q", vj.Version.Version, version.String())
	}
	if len(vj.Version.Firmwares) != version.FirmwareTargets {
		t.Fatalf("Firmwares: got %d, want %d", len(vj.Version.Firmwares), version.FirmwareTargets)
	}
	if vj.Version.Firmwares[0].ID != version.AppFirmwareID {
		t.Errorf("Firmwares[0].ID: got %#x, want %#x", vj.Version.Firmwares[0].ID, version.AppFirmwareID)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Observe(logic.Report{
		State:    logic.StateLearnMode,
		Channels: [logic.NumChannels]bool{false, true, false},
	})

	resp, body := getBody(t, ts.URL+"/")

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	for _, want := range []string{"Switch Node", "LEARN_MODE", "Channel 3", "not included"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if !strings.Contains(body, `id="channel-1" class="on"`) {
		t.Error("channel 2 should render as on")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := getBody(t, ts.URL+"/index.html")

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "UNKNOWN") {
		t.Error("expected UNKNOWN state before first report")
	}
}

func TestHTMLLiveScriptOnlyWithWSBroker(t *testing.T) {
	ts, _ := newTestServer(t)
	_, body := getBody(t, ts.URL+"/")
	if strings.Contains(body, "mqtt.connect") {
		t.Error("live script rendered without a websocket broker")
	}

	ts2, _ := newTestServerWithConfig(t, status.Config{
		WSBroker:   "ws://192.168.1.200:9001",
		StateTopic: "home/switch-node/state",
	})
	_, body = getBody(t, ts2.URL+"/")
	if !strings.Contains(body, "mqtt.connect") {
		t.Error("expected live script with a websocket broker")
	}
	if !strings.Contains(body, "switch-node") {
		t.Error("expected live script to subscribe to the state topic")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	resp1, _ := http.Get(ts.URL + "/index.json")
	var sj1 status.StatusJSON
	json.NewDecoder(resp1.Body).Decode(&sj1)
	resp1.Body.Close()
	if sj1.Status.Refreshes != 0 {
		t.Errorf("expected no refreshes initially, got %d", sj1.Status.Refreshes)
	}

	tr.Observe(logic.Report{State: logic.StateIdle, Channels: [logic.NumChannels]bool{false, false, true}})
	tr.SetMQTTConnected(true)
	tr.SetQueueDropped(4)

	resp2, _ := http.Get(ts.URL + "/index.json")
	var sj2 status.StatusJSON
	json.NewDecoder(resp2.Body).Decode(&sj2)
	resp2.Body.Close()

	if sj2.Status.Refreshes != 1 {
		t.Errorf("Refreshes: got %d, want 1", sj2.Status.Refreshes)
	}
	if sj2.Status.Channels[2] != "ON" {
		t.Errorf("Channels[2]: got %q, want ON", sj2.Status.Channels[2])
	}
	if sj2.Status.QueueDropped != 4 {
		t.Errorf("QueueDropped: got %d, want 4", sj2.Status.QueueDropped)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}

func TestFirmwareEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		target string
		code   int
		id     uint16
	}{
		{"0", http.StatusOK, version.AppFirmwareID},
		{"1", http.StatusOK, 0x1234},
		{"9", http.StatusOK, 0},
		{"x", http.StatusNotFound, 0},
		{"300", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp, body := getBody(t, ts.URL+"/firmware/"+tt.target)
			if resp.StatusCode != tt.code {
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var fw version.Firmware
			if err := json.Unmarshal([]byte(body), &fw); err != nil {
				t.Fatalf("decode JSON: %v", err)
			}
			if fw.ID != tt.id {
				t.Errorf("ID: got %#x, want %#x", fw.ID, tt.id)
			}
		})
	}
}

func TestJSONViewsAreNotCached(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/index.json", "/version.json", "/firmware/0"} {
		resp, _ := getBody(t, ts.URL+path)
		if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
			t.Errorf("%s: Cache-Control got %q, want no-store", path, cc)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /index.json: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

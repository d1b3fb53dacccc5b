package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  portal.web  ": "portal.web",
		"..portal..":     "portal",
		".":              "",
		"":               "",
	}

	for input, want := range tests {
		if got := sanitizePrefix(input); got != want {
			t.Fatalf("sanitizePrefix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" auth/sign_in ":     "auth_sign_in",
		"portal..redirect":   "portal.redirect",
		"role writeback":     "role_writeback",
		"guard:redirect|bad": "guard_redirect_bad",
	}

	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		//nolint:gocritic // whitespace is part of the test case
		" service ": " portal ",
	}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "stage",
	}

	got := formatTags(global, local)
	want := "|#env:stage,result:success,service:portal"
	if got != want {
		t.Fatalf("formatTags mismatch\n got: %q\nwant: %q", got, want)
	}
	if global["env"] != "prod" {
		t.Fatal("formatTags mutated the global tags")
	}
}

func TestFormatTagsEmpty(t *testing.T) {
	t.Parallel()

	if got := formatTags(nil, nil); got != "" {
		t.Fatalf("formatTags(nil, nil) = %q, want empty string", got)
	}
}

func TestClientWritesPrefixedLines(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     "portal",
		GlobalTags: map[string]string{"env": "test"},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("auth.sign_in", 1, map[string]string{"result": "success"})

	buf := make([]byte, 512)
	if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	if got, want := string(buf[:n]), "portal.auth.sign_in:1|c|#env:test,result:success"; got != want {
		t.Fatalf("datagram = %q, want %q", got, want)
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{conn: clientConn}
	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}

	var nilClient *Client
	nilClient.Count("dropped", 1, nil)
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder
	tags := map[string]string{"result": "success", "provider": "email"}
	r.Count("auth.sign_in", 1, tags)
	r.Count("auth.sign_in", 1, map[string]string{"result": "failure"})
	r.Timing("auth.sign_in.duration", 1500*time.Microsecond, nil)
	tags["result"] = "mutated"

	if got := r.Total("auth.sign_in", nil); got != 2 {
		t.Fatalf("Total(all) = %d, want 2", got)
	}
	if got := r.Total("auth.sign_in", map[string]string{"result": "success"}); got != 1 {
		t.Fatalf("Total(success) = %d, want 1", got)
	}
	samples := r.Samples()
	if len(samples) != 3 || samples[2].Kind != "timing" || samples[2].Value != 1.5 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

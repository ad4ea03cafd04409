package singleinstance

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestServerClientRoundTrip(t *testing.T) {
	t.Setenv("SINGLEINSTANCE_PORT_START", "49690")
	t.Setenv("SINGLEINSTANCE_PORT_END", "49690")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := NewServer()
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback TCP unavailable in this environment: %v", err)
	}
	defer srv.Close()

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00}
	tests := []struct {
		name    string
		mode    Mode
		respond func(Conn) error
		want    []byte
		wantErr string
	}{
		{
			name:    "stdout returns bytes",
			mode:    ModeStdout,
			respond: func(c Conn) error { return c.RespondSuccess(png) },
			want:    png,
		},
		{
			name:    "clipboard returns nothing",
			mode:    ModeClipboard,
			respond: func(c Conn) error { return c.RespondSuccess(nil) },
		},
		{
			name:    "retry error",
			mode:    ModeRetry,
			respond: func(c Conn) error { return c.RespondError("Busy, please retry") },
			wantErr: "Busy, please retry",
		},
	}

	client := NewClient()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			type reply struct {
				delegated bool
				payload   []byte
				err       error
			}
			done := make(chan reply, 1)
			go func() {
				delegated, payload, err := client.TryRunOnce(ctx, tt.mode)
				done <- reply{delegated, payload, err}
			}()

			conn, err := srv.Next(ctx)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if got := conn.Request().Mode; got != tt.mode {
				t.Errorf("mode = %s, want %s", got, tt.mode)
			}
			if err := tt.respond(conn); err != nil {
				t.Fatalf("respond: %v", err)
			}
			conn.Close()

			r := <-done
			if !r.delegated {
				t.Fatal("expected delegation")
			}
			if tt.wantErr != "" {
				if r.err == nil || r.err.Error() != tt.wantErr {
					t.Fatalf("err = %v, want %q", r.err, tt.wantErr)
				}
				return
			}
			if r.err != nil {
				t.Fatalf("client: %v", r.err)
			}
			if !bytes.Equal(r.payload, tt.want) {
				t.Fatalf("payload = % x, want % x", r.payload, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		line  string
		want  Mode
		known bool
	}{
		{"CLIPBOARD\n", ModeClipboard, true},
		{"STDOUT\n", ModeStdout, true},
		{"RETRY\r\n", ModeRetry, true},
		{"BOGUS\n", ModeClipboard, false},
	}
	for _, tt := range tests {
		got, known := ParseMode(tt.line)
		if got != tt.want || known != tt.known {
			t.Errorf("ParseMode(%q) = %s,%v want %s,%v", tt.line, got, known, tt.want, tt.known)
		}
	}
	if !(Request{Mode: ModeStdout}).OutputToStdout() {
		t.Error("stdout request must report OutputToStdout")
	}
}

func TestDetectResidentPortWithoutResident(t *testing.T) {
	t.Setenv("SINGLEINSTANCE_PORT_START", "49691")
	t.Setenv("SINGLEINSTANCE_PORT_END", "49691")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if port, ok := DetectResidentPort(ctx); ok {
		t.Logf("unexpected resident on port %d (another process?)", port)
	}
}

func TestPortRangeFrom(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		want  PortRange
		count int
	}{
		{name: "defaults", env: nil, want: PortRange{49600, 49650}, count: 51},
		{name: "custom", env: map[string]string{PortStartEnvVar: "50000", PortEndEnvVar: "50002"}, want: PortRange{50000, 50002}, count: 3},
		{name: "invalid falls back", env: map[string]string{PortStartEnvVar: "abc"}, want: PortRange{49600, 49650}, count: 51},
		{name: "clamped and ordered", env: map[string]string{PortStartEnvVar: "70000", PortEndEnvVar: "80"}, want: PortRange{1024, 65535}, count: 64512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := portRangeFrom(func(k string) string { return tt.env[k] })
			if got != tt.want || got.Len() != tt.count {
				t.Fatalf("portRangeFrom = %s (len %d), want %s (len %d)", got, got.Len(), tt.want, tt.count)
			}
		})
	}
}

func TestFindResidentStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := findResident(ctx, PortRange{Start: 49692, End: 49699}, 50*time.Millisecond); ok {
		t.Fatal("expected no resident after cancellation")
	}
}

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.DebugLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestComponentPrefix(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	l.ComponentInfo(ComponentEngine, "tick", zap.Int("n", 1))
	l.ComponentWarn(ComponentWire, "bad packet")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "[ENGINE] tick" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].Message != "[WIRE] bad packet" {
		t.Errorf("unexpected entry %+v", entries[1])
	}
}

func TestForAddsComponentField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	l.For(ComponentInterface).Debug("opened")

	entries := logs.FilterField(zap.String("component", "IFACE")).All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 tagged entry, got %d", len(logs.All()))
	}
}

func TestFileLoggerHonoursLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ns.log")
	l, err := New(Options{File: path, Level: "warn"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.ComponentInfo(ComponentNameService, "hidden")
	l.ComponentError(ComponentNameService, "shown")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(out, "[NS] shown") {
		t.Errorf("missing error entry in %q", out)
	}
}

func TestStandardLoggerPrintln(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewStandardLogger(Wrap(zap.New(core)), ComponentMetrics)

	s.Println("scrape failed", 3)

	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].Message != "[METRICS] scrape failed 3" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
}

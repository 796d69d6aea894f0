package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsPropagate(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logg := New(Options{ServiceName: "cart-api", Level: zerolog.InfoLevel, Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithWallet(ctx, "0xabc")
	logg.Info(ctx, "hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if line["request_id"] != "req-1" {
		t.Fatalf("missing request_id: %v", line)
	}
	if line["wallet"] != "0xabc" {
		t.Fatalf("missing wallet: %v", line)
	}
	if line["service"] != "cart-api" {
		t.Fatalf("missing service: %v", line)
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()

	if ParseLevel("") != zerolog.InfoLevel {
		t.Fatal("empty level should be info")
	}
	if ParseLevel("nonsense") != zerolog.InfoLevel {
		t.Fatal("unknown level should be info")
	}
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Fatal("debug level should parse")
	}
}

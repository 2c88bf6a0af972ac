package ffprobe

import (
	"context"
	"errors"
	"testing"
)

const sampleOutput = `{
  "streams": [
    {"index": 0, "codec_name": "mp3", "codec_type": "audio", "sample_rate": "44100", "channels": 2}
  ],
  "format": {
    "filename": "/data/acme-show/ab12cd34/original.mp3",
    "nb_streams": 1,
    "duration": "3612.408000",
    "size": "57798528",
    "bit_rate": "128000",
    "format_name": "mp3"
  }
}`

func TestInspectParsesFormatAndStreams(t *testing.T) {
	var gotBinary string
	var gotArgs []string
	runner := func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		gotBinary = binary
		gotArgs = args
		return []byte(sampleOutput), nil
	}

	result, err := InspectWith(context.Background(), "", "/data/acme-show/ab12cd34/original.mp3", runner)
	if err != nil {
		t.Fatalf("InspectWith: %v", err)
	}
	if gotBinary != "ffprobe" {
		t.Fatalf("expected default binary, got %q", gotBinary)
	}
	if gotArgs[len(gotArgs)-1] != "/data/acme-show/ab12cd34/original.mp3" {
		t.Fatalf("path must be final arg: %v", gotArgs)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected one audio stream, got %d", result.AudioStreamCount())
	}
	if got := result.DurationSeconds(); got < 3612.4 || got > 3612.5 {
		t.Fatalf("unexpected duration: %v", got)
	}
	if result.SizeBytes() != 57798528 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if result.BitRate() != 128000 {
		t.Fatalf("unexpected bitrate: %d", result.BitRate())
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	if _, err := InspectWith(context.Background(), "ffprobe", "  ", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestInspectPropagatesRunnerError(t *testing.T) {
	runner := func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1: no such file")
	}
	if _, err := InspectWith(context.Background(), "ffprobe", "/missing.mp3", runner); err == nil {
		t.Fatal("expected error from runner")
	}
}

func TestDurationMissingIsZero(t *testing.T) {
	runner := func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		return []byte(`{"streams":[],"format":{}}`), nil
	}
	result, err := InspectWith(context.Background(), "ffprobe", "/x.mp3", runner)
	if err != nil {
		t.Fatalf("InspectWith: %v", err)
	}
	if result.DurationSeconds() != 0 {
		t.Fatalf("expected zero duration, got %v", result.DurationSeconds())
	}
}

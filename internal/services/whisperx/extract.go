package whisperx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// buildExtractArgs assembles the ffmpeg arguments that convert the first
// audio stream of an episode file into a mono 16kHz WAV for WhisperX.
func buildExtractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

// ExtractAudio converts the first audio stream of source into a mono 16kHz
// WAV at dest, the input format WhisperX expects.
func ExtractAudio(ctx context.Context, ffmpegBinary, source, dest string) error {
	if source == "" {
		return fmt.Errorf("extract audio: source path required")
	}
	if dest == "" {
		return fmt.Errorf("extract audio: dest path required")
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, buildExtractArgs(source, dest)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

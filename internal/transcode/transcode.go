// Package transcode wraps the external ffmpeg tool as a blocking filter:
// input media file in, standardized MP4 out, or an error carrying the tool's
// diagnostic output.
package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Runner invokes ffmpeg with a fixed delivery profile. The profile is not
// configurable: H.264 at CRF 23 with the fast preset, AAC audio at 128k.
type Runner struct {
	ffmpegPath string
}

func NewRunner(ffmpegPath string) *Runner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Runner{ffmpegPath: ffmpegPath}
}

func buildArgs(inputPath, outputPath string) []string {
	return []string{
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-y", outputPath,
	}
}

// Transcode runs the filter and returns once the output file is fully
// written. A single failure aborts; there is no retry.
func (r *Runner) Transcode(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, r.ffmpegPath, buildArgs(inputPath, outputPath)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg transcode: %w: %s", err, string(output))
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("ffmpeg transcode: output missing: %w", err)
	}
	return nil
}

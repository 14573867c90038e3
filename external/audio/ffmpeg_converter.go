package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	internalaudio "github.com/foxseedlab/rokuonkun/internal/audio"
)

const convertTimeout = 5 * time.Minute

// codecArgs per target container. Sessions can run for hours, so mp3 gets a
// VBR profile instead of a fixed high bitrate.
var codecArgs = map[string][]string{
	"mp3":  {"-codec:a", "libmp3lame", "-qscale:a", "4"},
	"flac": {"-codec:a", "flac"},
	"ogg":  {"-codec:a", "libvorbis", "-qscale:a", "5"},
}

// FFmpegConverter shells out to ffmpeg for archive conversion. ffmpeg is only
// required when AUDIO_FORMAT is not wav.
type FFmpegConverter struct {
	binary string
}

func NewFFmpegConverter() internalaudio.Converter {
	return &FFmpegConverter{binary: "ffmpeg"}
}

func (c *FFmpegConverter) Convert(ctx context.Context, srcPath, dstPath, format string) error {
	extraArgs, ok := codecArgs[format]
	if !ok {
		return fmt.Errorf("unsupported conversion format %q", format)
	}

	ctx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", srcPath}
	args = append(args, extraArgs...)
	args = append(args, dstPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, stderr.String())
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

package sensor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
)

// Runner executes one external command.
type Runner func(ctx context.Context, name string, args ...string) error

// CameraOption configures a CommandCamera.
type CameraOption func(*CommandCamera)

// WithRunner sets the command runner for testing.
func WithRunner(r Runner) CameraOption {
	return func(c *CommandCamera) {
		c.run = r
	}
}

// WithPause sets the function used between images.
func WithPause(pause func(time.Duration)) CameraOption {
	return func(c *CommandCamera) {
		c.pause = pause
	}
}

// CommandCamera captures stills and clips by running camera CLI commands.
// The placeholders {output} and {millis} in the configured arguments are
// replaced with the target file and the clip length.
type CommandCamera struct {
	cfg   config.CameraConfig
	run   Runner
	pause func(time.Duration)
	log   logger.ILogger
}

// NewCommandCamera creates a command camera.
func NewCommandCamera(cfg config.CameraConfig, log logger.ILogger, opts ...CameraOption) *CommandCamera {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = "rs"
	}
	c := &CommandCamera{
		cfg:   cfg,
		run:   runCommand,
		pause: time.Sleep,
		log:   log.SubLogger("Camera"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture takes the configured number of images. With video enabled and at
// least two images, the clip is recorded between the two halves.
func (c *CommandCamera) Capture(ctx context.Context, folder string) ([]string, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("creating capture folder: %w", err)
	}

	count := c.cfg.ImageCount
	split := c.cfg.VideoEnabled && count >= 2
	first := count
	if split {
		first = count / 2
	}

	var files []string
	taken := 0
	shoot := func(n int) error {
		for i := 0; i < n; i++ {
			taken++
			out := filepath.Join(folder, fmt.Sprintf("%s-%d.jpg", c.cfg.FilePrefix, taken))
			c.log.Debugf("capturing image: n=%d, path=%s", taken, out)
			if err := c.exec(ctx, c.cfg.ImageCommand, out); err != nil {
				return fmt.Errorf("capturing image %d: %w", taken, err)
			}
			files = append(files, out)
			c.pause(c.cfg.BetweenImages)
		}
		return nil
	}

	if err := shoot(first); err != nil {
		return files, err
	}

	if c.cfg.VideoEnabled {
		out := filepath.Join(folder, c.cfg.FilePrefix+"-video.mp4")
		c.log.Debugf("capturing video: length=%v, path=%s", c.cfg.VideoLength, out)
		if err := c.exec(ctx, c.cfg.VideoCommand, out); err != nil {
			c.log.Errorf("video capture failed: %v", err)
		} else {
			files = append(files, out)
		}
	}

	if split {
		if err := shoot(count - taken); err != nil {
			return files, err
		}
	}

	return files, nil
}

func (c *CommandCamera) exec(ctx context.Context, argv []string, output string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no command configured")
	}

	millis := strconv.FormatInt(c.cfg.VideoLength.Milliseconds(), 10)
	args := make([]string, len(argv)-1)
	for i, a := range argv[1:] {
		a = strings.ReplaceAll(a, "{output}", output)
		args[i] = strings.ReplaceAll(a, "{millis}", millis)
	}
	return c.run(ctx, argv[0], args...)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates a new ffmpeg executor. binary may be a path, a name on PATH,
// or empty; a copy bundled under assets/ next to the executable is preferred
// when present.
func New(logger zerolog.Logger, binary string, threads int) (*Executor, error) {
	ffmpegPath, err := findBinary(binary, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	probe := filepath.Join(filepath.Dir(ffmpegPath), exeName("ffprobe"))
	ffprobePath, err := findBinary(probe, "ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
	}, nil
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// findBinary resolves an explicit path first, then assets/<name> beside the
// running executable, then PATH.
func findBinary(configured, name string) (string, error) {
	if configured != "" && configured != name && filepath.IsAbs(configured) {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
	}

	if exePath, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(exePath), "assets", exeName(name))
		if _, err := os.Stat(bundled); err == nil {
			return bundled, nil
		}
	}

	lookup := name
	if configured != "" && !filepath.IsAbs(configured) {
		lookup = configured
	}
	return exec.LookPath(lookup)
}

// FFmpegPath returns the resolved ffmpeg binary
func (e *Executor) FFmpegPath() string { return e.ffmpegPath }

func (e *Executor) baseArgs() []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "info"}
	if e.threads > 0 {
		args = append(args, "-threads", fmt.Sprintf("%d", e.threads))
	}
	return append(args, "-progress", "pipe:2", "-nostats")
}

// Run executes ffmpeg with the given arguments and streams progress
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	args := append(e.baseArgs(), opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	// Stream stderr (progress + logs)
	go func() {
		defer wg.Done()
		e.streamOutput(stderr, opts.Duration, opts.ProgressHandler, opts.LogHandler)
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// streamOutput parses ffmpeg -progress output and calls handlers
func (e *Executor) streamOutput(r io.Reader, total time.Duration, progressHandler ProgressFunc, logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			if logHandler != nil {
				logHandler(line)
			}
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			progressData.Frame, _ = strconv.Atoi(value)
		case "fps":
			progressData.FPS, _ = strconv.ParseFloat(value, 64)
		case "bitrate":
			progressData.Bitrate = value
		case "out_time":
			progressData.Time = value
		case "out_time_us", "out_time_ms":
			// both keys carry microseconds
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				progressData.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			progressData.Speed = value
		case "progress":
			if total > 0 {
				progressData.Percentage = min(100, 100*progressData.OutTime.Seconds()/total.Seconds())
			}
			if value == "end" && total > 0 {
				progressData.Percentage = 100
			}
			if progressHandler != nil {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		default:
			if logHandler != nil {
				logHandler(line)
			}
		}
	}
}

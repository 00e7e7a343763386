package removal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// CommandRemover runs an external matting program, such as `rembg i`.
//
// The source is written to the program's stdin as PNG; the program must write
// a PNG with an alpha channel to stdout. Lines on stderr of the form
// "progress 0.42" are forwarded to the progress callback; other stderr lines
// are logged at debug level.
type CommandRemover struct {
	Path   string
	Args   []string
	Logger *slog.Logger
}

// NewCommandRemover returns a remover running path with args.
func NewCommandRemover(path string, args []string, logger *slog.Logger) *CommandRemover {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandRemover{Path: path, Args: args, Logger: logger}
}

// Remove implements Remover.
func (c *CommandRemover) Remove(ctx context.Context, src image.Image, progress ProgressFunc) (image.Image, error) {
	if c.Path == "" {
		return nil, errors.New("removal command not configured")
	}
	report(progress, 0)

	var stdin bytes.Buffer
	if err := imaging.Encode(&stdin, src, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode removal input: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = &stdin
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach removal stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start removal command: %w", err)
	}
	var tail []string
	c.scanStderr(stderr, progress, &tail)
	if err := cmd.Wait(); err != nil {
		if len(tail) > 0 {
			return nil, fmt.Errorf("removal command failed: %w: %s", err, strings.Join(tail, "; "))
		}
		return nil, fmt.Errorf("removal command failed: %w", err)
	}

	out, err := imaging.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode removal output: %w", err)
	}
	if !HasAlpha(out) {
		return nil, ErrNoAlpha
	}
	report(progress, 1)
	return out, nil
}

// scanStderr consumes stderr until EOF, forwarding progress lines and
// keeping the last few other lines for error messages.
func (c *CommandRemover) scanStderr(r io.Reader, progress ProgressFunc, tail *[]string) {
	const keep = 3
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if v, ok := parseProgressLine(line); ok {
			report(progress, v)
			continue
		}
		c.Logger.Debug("removal command output", "line", line)
		*tail = append(*tail, line)
		if len(*tail) > keep {
			*tail = (*tail)[1:]
		}
	}
}

func parseProgressLine(line string) (float64, bool) {
	rest, ok := strings.CutPrefix(line, "progress ")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Package postproc pipes transcripts through a user-configured shell
// command. The command reads the transcript on stdin and writes the
// replacement on stdout. Any failure passes the original text through
// unchanged; a dictation session never dies because a cleanup script
// misbehaves.
package postproc

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"voiced/internal/logging"
)

// Filter runs the configured command over transcripts.
type Filter struct {
	command string
	timeout time.Duration
	log     *logging.Logger
}

// New creates a filter. An empty command makes Apply a pass-through.
func New(command string, timeout time.Duration, log *logging.Logger) *Filter {
	return &Filter{command: command, timeout: timeout, log: log}
}

// Apply filters text through the command. On timeout, non-zero exit,
// or empty output the original text is returned.
func (f *Filter) Apply(ctx context.Context, text string) string {
	if f.command == "" || strings.TrimSpace(text) == "" {
		return text
	}

	runCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", f.command)
	cmd.Stdin = strings.NewReader(text)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		f.log.Warn("post-process command failed, using raw transcript",
			"command", f.command,
			"error", err,
			"stderr", strings.TrimSpace(stderr.String()))
		return text
	}
	filtered := out.String()
	if strings.TrimSpace(filtered) == "" {
		f.log.Warn("post-process command produced no output, using raw transcript",
			"command", f.command)
		return text
	}
	return filtered
}

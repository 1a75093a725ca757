package postproc

import (
	"context"
	"strings"
	"testing"
	"time"

	"voiced/internal/logging"
)

func TestApplyRunsCommand(t *testing.T) {
	f := New("tr a-z A-Z", 5*time.Second, logging.Default())
	got := f.Apply(context.Background(), "hello world")
	if strings.TrimSpace(got) != "HELLO WORLD" {
		t.Errorf("Apply = %q, want uppercased text", got)
	}
}

func TestApplyEmptyCommandPassesThrough(t *testing.T) {
	f := New("", time.Second, logging.Default())
	if got := f.Apply(context.Background(), "unchanged"); got != "unchanged" {
		t.Errorf("Apply = %q, want pass-through", got)
	}
}

func TestApplyFailingCommandPassesThrough(t *testing.T) {
	f := New("exit 3", time.Second, logging.Default())
	if got := f.Apply(context.Background(), "keep me"); got != "keep me" {
		t.Errorf("Apply = %q, want original text on command failure", got)
	}
}

func TestApplyEmptyOutputPassesThrough(t *testing.T) {
	f := New("true", time.Second, logging.Default())
	if got := f.Apply(context.Background(), "keep me"); got != "keep me" {
		t.Errorf("Apply = %q, want original text when command emits nothing", got)
	}
}

func TestApplyTimeoutPassesThrough(t *testing.T) {
	f := New("sleep 10", 50*time.Millisecond, logging.Default())
	start := time.Now()
	got := f.Apply(context.Background(), "slow")
	if got != "slow" {
		t.Errorf("Apply = %q, want original text on timeout", got)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestApplyBlankInputSkipsCommand(t *testing.T) {
	f := New("exit 1", time.Second, logging.Default())
	if got := f.Apply(context.Background(), "   "); got != "   " {
		t.Errorf("Apply = %q, want blank input untouched", got)
	}
}

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRendererPaintsOnlyWithColor(t *testing.T) {
	plain := renderer{}
	if got := plain.bad("boom"); got != "boom" {
		t.Fatalf("expected plain text, got %q", got)
	}
	colored := renderer{color: true}
	got := colored.good("ok")
	if !strings.HasPrefix(got, toneCodes[toneGood]) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected colored text, got %q", got)
	}
	if got := colored.muted(""); got != "" {
		t.Fatalf("expected empty value to stay empty, got %q", got)
	}
}

func TestInteractiveRejectsBuffersAndJSON(t *testing.T) {
	var buf bytes.Buffer
	if interactive(&buf, false) || interactive(&buf, true) {
		t.Fatalf("expected buffers to be non-interactive")
	}
}

func TestWithProgressReturnsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	want := errors.New("stopped")

	err := withProgress(ctx, &out, true, "Migrating", func() error {
		cancel()
		time.Sleep(300 * time.Millisecond)
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if !strings.Contains(out.String(), "Cancelling") {
		t.Fatalf("expected cancelling label, got %q", out.String())
	}
}

package cli

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestSimpleProgressBasic(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewUnitProgress(buf, "tables")

	progress.Start(4)
	progress.Update(2)
	progress.Finish()

	output := buf.String()
	if !strings.Contains(output, "2/4 tables") {
		t.Errorf("expected intermediate progress in output, got %q", output)
	}
	if !strings.Contains(output, "100.0%") || !strings.Contains(output, "4/4 tables") {
		t.Errorf("expected completed progress in output, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Finish() should end the line")
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(0)
	progress.Update(0)
	progress.Finish()

	if buf.Len() != 0 {
		t.Errorf("expected no output for zero total, got %q", buf.String())
	}
}

func TestSimpleProgressOverflow(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(2)
	progress.Update(5) // must not panic on a negative repeat count
	if !strings.Contains(buf.String(), "5/2") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(3)
	progress.Error(errors.New("catalog unavailable"))

	if !strings.Contains(buf.String(), "Error: catalog unavailable") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSimpleProgressConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)
	progress.Start(100)

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			progress.Update(n * 10)
		}(int64(i))
	}
	wg.Wait()
	progress.Finish()

	if !strings.Contains(buf.String(), "100/100") {
		t.Errorf("output = %q", buf.String())
	}
}

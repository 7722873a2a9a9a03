package async

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/constants"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/document"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/pipeline"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/store"
)

type stubRecognizer struct{ text string }

func (s stubRecognizer) Recognize(_ context.Context, _ image.Image) (string, error) {
	return s.text, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestQueueProcessesAndPersists(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "invoices.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(dir, name))
	}

	loader := document.NewLoader(document.Config{}, logger)
	proc := pipeline.NewProcessor(logger, loader, stubRecognizer{text: "Total: $10.00"})
	q := NewProcessorQueue(proc, logger, WithWorkers(2), WithStore(st))

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, q.Enqueue(ctx, Job{Path: filepath.Join(dir, name), SubmittedAt: time.Now()}))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	q.Shutdown(shutdownCtx)

	recs, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.Equal(t, constants.StatusCompleted, rec.Status)
		assert.Equal(t, pipeline.MethodRegex, rec.Method)
	}
}

func TestQueueUnreadableFileSkipped(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "invoices.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	loader := document.NewLoader(document.Config{}, logger)
	proc := pipeline.NewProcessor(logger, loader, stubRecognizer{text: "x"})
	q := NewProcessorQueue(proc, logger, WithWorkers(1), WithStore(st))

	require.NoError(t, q.Enqueue(ctx, Job{Path: filepath.Join(t.TempDir(), "missing.png")}))
	q.Shutdown(context.Background())

	recs, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestQueueEnqueueAfterShutdown(t *testing.T) {
	logger := testLogger()
	loader := document.NewLoader(document.Config{}, logger)
	proc := pipeline.NewProcessor(logger, loader, stubRecognizer{text: "x"})
	q := NewProcessorQueue(proc, logger, WithWorkers(1))

	q.Shutdown(context.Background())
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{Path: "late.png"}), ErrQueueClosed)
	// second shutdown is safe
	q.Shutdown(context.Background())
}

// gateRecognizer blocks every page until released, wedging the workers.
type gateRecognizer struct{ release chan struct{} }

func (g gateRecognizer) Recognize(_ context.Context, _ image.Image) (string, error) {
	<-g.release
	return "Total: $1.00", nil
}

func TestQueueBackpressureDoesNotBlockShutdown(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(dir, name))
	}

	gate := gateRecognizer{release: make(chan struct{})}
	loader := document.NewLoader(document.Config{}, logger)
	proc := pipeline.NewProcessor(logger, loader, gate)
	q := NewProcessorQueue(proc, logger, WithWorkers(1), WithQueueSize(1))

	// first job occupies the worker, second fills the buffer
	require.NoError(t, q.Enqueue(ctx, Job{Path: filepath.Join(dir, "a.png")}))
	require.NoError(t, q.Enqueue(ctx, Job{Path: filepath.Join(dir, "b.png")}))

	// third enqueue hits backpressure; a cancelled context frees it
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := q.Enqueue(cancelled, Job{Path: filepath.Join(dir, "c.png")})
	assert.ErrorIs(t, err, context.Canceled)

	// shutdown must proceed with the worker still wedged
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gate.release)
	}()
	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 10*time.Second)
	defer cancelShutdown()
	q.Shutdown(shutdownCtx)
}

package ocr

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/common"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf", "a\r\nb\rc", "a\nb\nc"},
		{"tabs and runs of spaces", "a\t\tb    c", "a b c"},
		{"blank line collapse", "a\n\n\n\n\nb", "a\n\nb"},
		{"trailing spaces", "a   \nb  ", "a\nb"},
		{"surrounding whitespace", "  \n hello \n  ", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestHeuristicConfidence(t *testing.T) {
	empty := HeuristicConfidence("")
	rich := HeuristicConfidence("Invoice dated 2024-02-01 for a total of $150.00 USD, payable on receipt. Thank you for your continued business with us.")
	assert.InDelta(t, 0.2, float64(empty), 0.001)
	assert.Greater(t, rich, empty)
	assert.LessOrEqual(t, rich, float32(1.0))
}

// recordingRunner captures the command line and returns canned output.
type recordingRunner struct {
	name   string
	args   []string
	stdout []byte
	stderr []byte
	err    error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	return r.stdout, r.stderr, r.err
}

func testImage() image.Image {
	return image.NewGray(image.Rect(0, 0, 4, 4))
}

func TestRecognizeInvokesTesseract(t *testing.T) {
	runner := &recordingRunner{stdout: []byte("Invoice #INV-100\n")}
	r := NewTesseractRecognizer(Config{PSM: 6}, testLogger()).WithRunner(runner)

	txt, err := r.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "Invoice #INV-100\n", txt)

	assert.Equal(t, "tesseract", runner.name)
	require.GreaterOrEqual(t, len(runner.args), 4)
	assert.Equal(t, "stdout", runner.args[1])
	assert.Contains(t, runner.args, "-l")
	assert.Contains(t, runner.args, "eng")
	assert.Contains(t, runner.args, "--psm")

	// temp page must be gone after the call
	_, statErr := os.Stat(runner.args[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestRecognizeStripsBoxNoise(t *testing.T) {
	runner := &recordingRunner{stdout: []byte("Total: $10.00\n________\nDue now\n")}
	r := NewTesseractRecognizer(Config{}, testLogger()).WithRunner(runner)

	txt, err := r.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.NotContains(t, txt, "____")
	assert.Contains(t, txt, "Due now")
}

func TestRecognizeUnavailable(t *testing.T) {
	runner := &recordingRunner{stderr: []byte("tesseract: not found"), err: errors.New("exit status 127")}
	r := NewTesseractRecognizer(Config{}, testLogger()).WithRunner(runner)

	_, err := r.Recognize(context.Background(), testImage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrRecognitionUnavailable))
}

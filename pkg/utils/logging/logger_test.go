package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]struct {
		input  string
		expect slog.Level
		fail   bool
	}{
		"debug":      {input: "debug", expect: slog.LevelDebug},
		"upper case": {input: "DEBUG", expect: slog.LevelDebug},
		"empty":      {input: "", expect: slog.LevelInfo},
		"warning":    {input: "warning", expect: slog.LevelWarn},
		"error":      {input: " error ", expect: slog.LevelError},
		"unknown":    {input: "verbose", expect: slog.LevelInfo, fail: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			lv, err := logging.ParseLevel(tc.input)
			if tc.fail {
				gt.Error(t, err)
			} else {
				gt.NoError(t, err)
			}
			gt.Equal(t, lv, tc.expect)
		})
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("warn", buf)

	logger.Info("turn started")
	logger.Warn("archive failed", "uri", "at://did:plc:alice/app.bsky.feed.post/1")

	out := buf.String()
	gt.S(t, out).NotContains("turn started")
	gt.S(t, out).Contains("archive failed")
	gt.S(t, out).Contains("at://did:plc:alice/app.bsky.feed.post/1")
}

func TestNewFallsBackToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("verbose", buf)

	logger.Debug("hidden")
	logger.Info("shown")
	gt.S(t, buf.String()).NotContains("hidden")
	gt.S(t, buf.String()).Contains("shown")
}

func TestNewWithFormat(t *testing.T) {
	t.Run("json expands goerr values", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger, err := logging.NewWithFormat("info", logging.FormatJSON, buf)
		gt.NoError(t, err)

		logger.Error("turn failed", "error", goerr.New("thread fetch failed", goerr.V("uri", "at://x")))
		gt.S(t, buf.String()).Contains(`"msg":"turn failed"`)
		gt.S(t, buf.String()).Contains(`"message":"thread fetch failed"`)
		gt.S(t, buf.String()).Contains(`"uri":"at://x"`)
	})

	t.Run("console", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger, err := logging.NewWithFormat("debug", "", buf)
		gt.NoError(t, err)

		logger.Debug("context assembled", "messages", 4)
		gt.S(t, buf.String()).Contains("context assembled")
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := logging.NewWithFormat("info", "xml", &bytes.Buffer{})
		gt.Error(t, err)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := logging.NewWithFormat("loud", logging.FormatConsole, &bytes.Buffer{})
		gt.Error(t, err)
	})
}

func TestContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf).With("did", "did:plc:alice")

	ctx := logging.With(context.Background(), logger)
	gt.Equal(t, logging.From(ctx), logger)

	logging.From(ctx).Info("replied")
	gt.S(t, buf.String()).Contains("did:plc:alice")
}

func TestFromUsesDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	custom := logging.New("info", buf)
	logging.SetDefault(custom)

	logger := logging.From(context.Background())
	gt.Equal(t, logger, custom)

	logger.Info("from default")
	gt.S(t, buf.String()).Contains("from default")
}

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() logger.ILogger {
	return logger.NewConsoleLogger(io.Discard)
}

// mockWriteCloser is a testify mock for the journal writer.
type mockWriteCloser struct {
	mock.Mock
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *mockWriteCloser) Close() error {
	return m.Called().Error(0)
}

func TestLog_Open(t *testing.T) {
	t.Run("no journal", func(t *testing.T) {
		called := false
		factory := func(c config.LogDestinationConfig) (io.WriteCloser, error) {
			called = true
			return nil, nil
		}

		l := NewLog(config.LogDestinationConfig{}, testLogger(), WithWriterFactory(factory))
		assert.NoError(t, l.Open(context.Background()))
		assert.False(t, called)
	})

	t.Run("factory error", func(t *testing.T) {
		factory := func(c config.LogDestinationConfig) (io.WriteCloser, error) {
			return nil, errors.New("factory error")
		}

		l := NewLog(config.LogDestinationConfig{JournalPath: "/tmp/journal.log"}, testLogger(), WithWriterFactory(factory))
		err := l.Open(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "factory error")
	})
}

func TestLog_Journal(t *testing.T) {
	t.Run("file line", func(t *testing.T) {
		w := &mockWriteCloser{}
		w.On("Write", mock.MatchedBy(func(p []byte) bool {
			var out map[string]any
			err := json.Unmarshal(p, &out)
			return err == nil &&
				out["event"] == "file" &&
				out["name"] == "rs-1.jpg" &&
				out["kind"] == "image" &&
				out["subfolder"] == "rs-1/2026-01-18-12-00-00"
		})).Return(10, nil)
		w.On("Close").Return(nil)

		factory := func(c config.LogDestinationConfig) (io.WriteCloser, error) {
			return w, nil
		}

		l := NewLog(config.LogDestinationConfig{JournalPath: "/tmp/journal.log"}, testLogger(), WithWriterFactory(factory))
		require.NoError(t, l.Open(context.Background()))

		asset := model.NewCapturedAsset("/sync/rs-1/rs-1.jpg", "rs-1/2026-01-18-12-00-00", "")
		assert.NoError(t, l.SendFile(context.Background(), asset))
		assert.NoError(t, l.Close())
		w.AssertExpectations(t)
	})

	t.Run("message line", func(t *testing.T) {
		var buf bytes.Buffer
		factory := func(c config.LogDestinationConfig) (io.WriteCloser, error) {
			return nopCloser{&buf}, nil
		}

		l := NewLog(config.LogDestinationConfig{JournalPath: "/tmp/journal.log"}, testLogger(), WithWriterFactory(factory))
		require.NoError(t, l.Open(context.Background()))
		require.NoError(t, l.SendText(context.Background(), "hello", "greeting"))

		var out map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		assert.Equal(t, "message", out["event"])
		assert.Equal(t, "greeting", out["subject"])
		assert.Equal(t, "hello", out["body"])
		assert.NotEmpty(t, out["timestamp"])
	})

	t.Run("write error", func(t *testing.T) {
		w := &mockWriteCloser{}
		w.On("Write", mock.Anything).Return(0, errors.New("disk full"))

		factory := func(c config.LogDestinationConfig) (io.WriteCloser, error) {
			return w, nil
		}

		l := NewLog(config.LogDestinationConfig{JournalPath: "/tmp/journal.log"}, testLogger(), WithWriterFactory(factory))
		require.NoError(t, l.Open(context.Background()))
		assert.Error(t, l.SendText(context.Background(), "hello", ""))
	})

	t.Run("closed journal is skipped", func(t *testing.T) {
		l := NewLog(config.LogDestinationConfig{}, testLogger())
		assert.NoError(t, l.SendText(context.Background(), "hello", ""))
		assert.NoError(t, l.Close())
	})
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

package transport

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
	"github.com/natefinch/lumberjack"
)

// WriterFactory creates the journal writer.
type WriterFactory func(cfg config.LogDestinationConfig) (io.WriteCloser, error)

// LogOption configures the Log transport.
type LogOption func(*Log)

// WithWriterFactory sets a custom factory for creating the journal writer.
func WithWriterFactory(f WriterFactory) LogOption {
	return func(l *Log) {
		l.factory = f
	}
}

// Log reports every notification and file through the logger and, when a
// journal path is configured, appends it as a JSON line to a rotating file.
type Log struct {
	cfg     config.LogDestinationConfig
	factory WriterFactory
	writer  io.WriteCloser
	log     logger.ILogger
	now     func() time.Time
	mu      sync.Mutex
}

// NewLog creates a Log transport.
func NewLog(cfg config.LogDestinationConfig, log logger.ILogger, opts ...LogOption) *Log {
	l := &Log{
		cfg: cfg,
		log: log.SubLogger("Log"),
		now: time.Now,
	}

	l.factory = func(cfg config.LogDestinationConfig) (io.WriteCloser, error) {
		return &lumberjack.Logger{
			Filename:   cfg.JournalPath,
			MaxSize:    cfg.JournalMaxSizeMB,
			MaxBackups: cfg.JournalMaxBackups,
			MaxAge:     cfg.JournalMaxAgeDays,
			Compress:   cfg.JournalCompress,
		}, nil
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Name returns the transport identifier.
func (l *Log) Name() string {
	return "Log"
}

// Open creates the journal writer when a journal path is configured.
func (l *Log) Open(ctx context.Context) error {
	if l.cfg.JournalPath == "" {
		return nil
	}

	w, err := l.factory(l.cfg)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.writer = w
	l.mu.Unlock()
	return nil
}

// Handshake is a no-op; the logger is always reachable.
func (l *Log) Handshake(ctx context.Context) error {
	return nil
}

// SendText logs a notification.
func (l *Log) SendText(ctx context.Context, body, subject string) error {
	l.log.Infof("message: subject=%q, body=%q", subject, body)
	return l.journal(map[string]any{
		"event":   "message",
		"subject": subject,
		"body":    body,
	})
}

// SendFile logs a captured file.
func (l *Log) SendFile(ctx context.Context, asset model.CapturedAsset) error {
	l.log.Infof("%s: path=%s, subfolder=%s, name=%s", asset.Kind, asset.Path, asset.Subfolder, asset.Name)
	return l.journal(map[string]any{
		"event":     "file",
		"path":      asset.Path,
		"subfolder": asset.Subfolder,
		"name":      asset.Name,
		"kind":      asset.Kind.String(),
	})
}

// Close closes the journal writer.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}
	err := l.writer.Close()
	l.writer = nil
	return err
}

// Wipe is a no-op; the log transport holds no secrets.
func (l *Log) Wipe() {}

func (l *Log) journal(data map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data["timestamp"] = l.now().Format(time.RFC3339Nano)

	output, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = l.writer.Write(append(output, '\n'))
	return err
}

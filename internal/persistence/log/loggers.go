// Package log persists host activity as compressed JSONL streams: one
// file per hour, one JSON object per line. These files are the durable
// source of truth; the SQLite index is derived from the same entries.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"emberhost.ai/internal/session"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// SessionAuditLogger records every gated session operation (compressed).
type SessionAuditLogger struct{ w *JSONLZstdWriter }

func NewSessionAuditLogger(dataDir string) *SessionAuditLogger {
	return &SessionAuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "session-audit")}
}

func (l *SessionAuditLogger) WriteSessionAudit(e session.AuditEntry) error { return l.w.Write(e) }
func (l *SessionAuditLogger) Close() error                                { return l.w.Close() }

// ResolutionEntry is one pointer-chain resolution attempt, success or not.
type ResolutionEntry struct {
	Registry    string `json:"registry"`
	TokenID     string `json:"token_id"`
	CardURI     string `json:"card_uri,omitempty"`
	ManifestURI string `json:"manifest_uri,omitempty"`
	Outcome     string `json:"outcome"` // "ok" or a failure class
	Detail      string `json:"detail,omitempty"`
	RecordedAt  string `json:"recorded_at"`
}

// ResolutionLogger records resolution attempts (compressed).
type ResolutionLogger struct{ w *JSONLZstdWriter }

func NewResolutionLogger(dataDir string) *ResolutionLogger {
	return &ResolutionLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "resolutions"), "resolutions")}
}

func (l *ResolutionLogger) WriteResolution(e ResolutionEntry) error { return l.w.Write(e) }
func (l *ResolutionLogger) Close() error                            { return l.w.Close() }

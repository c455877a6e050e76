// Package seclog はセキュリティ判定（許可/拒否）を構造化ログとして出力します。
// 出力前に機微情報を含むキーの値をマスクします。
package seclog

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level はログレベルです。
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Logger はセキュリティイベントを1行のJSONで書き出します。
// info は標準出力、warn/error は標準エラー出力に送られます。
type Logger struct {
	out    zerolog.Logger
	errOut zerolog.Logger
	raw    io.Writer
}

// New は出力先を指定して Logger を作成します。
func New(out, errOut io.Writer) *Logger {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	return &Logger{
		out:    zerolog.New(out).With().Timestamp().Logger(),
		errOut: zerolog.New(errOut).With().Timestamp().Logger(),
		raw:    errOut,
	}
}

// Default は標準出力/標準エラー出力に書き出す Logger を返します。
func Default() *Logger {
	return New(os.Stdout, os.Stderr)
}

// Nop は何も出力しない Logger を返します。
func Nop() *Logger {
	return New(io.Discard, io.Discard)
}

// Log はイベントを記録します。呼び出し元を失敗させないため、panic しません。
func (l *Logger) Log(level Level, event string, details map[string]any) {
	if l == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			l.fallback(level, event, rec)
		}
	}()

	redacted := Redact(details)

	var evt *zerolog.Event
	switch level {
	case LevelError:
		evt = l.errOut.Error()
	case LevelWarn:
		evt = l.errOut.Warn()
	default:
		evt = l.out.Info()
	}
	evt.Str("event", event).Interface("details", redacted).Send()
}

// Info は info レベルで記録します。
func (l *Logger) Info(event string, details map[string]any) {
	l.Log(LevelInfo, event, details)
}

// Warn は warn レベルで記録します。
func (l *Logger) Warn(event string, details map[string]any) {
	l.Log(LevelWarn, event, details)
}

// Error は error レベルで記録します。
func (l *Logger) Error(event string, details map[string]any) {
	l.Log(LevelError, event, details)
}

func (l *Logger) fallback(level Level, event string, cause any) {
	defer func() { _ = recover() }()
	if l.raw == nil {
		return
	}
	_, _ = fmt.Fprintf(l.raw, "{\"level\":%q,\"event\":%q,\"details\":\"logging_failed\",\"cause\":%q}\n",
		string(level), event, fmt.Sprint(cause))
}

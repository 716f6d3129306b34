package logger

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// consoleTimeFormat はコンソール出力用の時刻表記。JSON出力は日付付きのデフォルト表記を使う
const consoleTimeFormat = "15:04:05.000"

// New は設定に応じたロガーを作成する
// format が "json" の場合はJSON行、それ以外はコンソール向けの出力になる
func New(level, format string) *log.Logger {
	return newWithWriter(level, format, os.Stdout)
}

func newWithWriter(level, format string, out io.Writer) *log.Logger {
	logger := &log.Logger{
		Level: log.ParseLevel(strings.ToLower(level)),
	}

	if strings.EqualFold(format, "json") {
		logger.Writer = &log.IOWriter{Writer: out}
	} else {
		logger.TimeFormat = consoleTimeFormat
		logger.Writer = &log.ConsoleWriter{
			ColorOutput:    out == os.Stdout,
			QuoteString:    true,
			EndWithMessage: true,
			Writer:         out,
		}
	}
	return logger
}

// OrDefault は nil の場合にデフォルトロガーを返す
func OrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return &log.DefaultLogger
	}
	return l
}

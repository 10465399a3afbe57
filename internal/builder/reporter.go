package builder

import (
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives human-readable progress messages. Implementations must
// be safe for concurrent use.
type Reporter interface {
	PostStatus(msg string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(msg string)

func (f ReporterFunc) PostStatus(msg string) { f(msg) }

type nopReporter struct{}

func (nopReporter) PostStatus(string) {}

// LogReporter writes every message at info level.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) PostStatus(msg string) {
	r.Logger.Info(msg)
}

// ProgressBar shows messages on a terminal spinner.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

func NewProgressBar(w io.Writer) *ProgressBar {
	return &ProgressBar{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (p *ProgressBar) PostStatus(msg string) {
	p.bar.Describe(msg)
	p.bar.Add(1)
}

func (p *ProgressBar) Finish() error {
	return p.bar.Finish()
}

// Reporters fans messages out to several reporters.
type Reporters []Reporter

func (rs Reporters) PostStatus(msg string) {
	for _, r := range rs {
		r.PostStatus(msg)
	}
}

package display

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logx "spotcheck/pkg/logx"
)

// Config selects and configures the frame sinks.
type Config struct {
	// Sinks lists sink names: "log", "pdf".
	Sinks   []string
	PDFPath string
}

// OpenSink builds the sink chain for cfg. With no sinks configured frames go
// to the log.
func OpenSink(cfg Config, log logx.Logger) (Sink, error) {
	names := cfg.Sinks
	if len(names) == 0 {
		names = []string{"log"}
	}
	var sinks MultiSink
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "log":
			sinks = append(sinks, NewLogSink(log))
		case "pdf":
			if strings.TrimSpace(cfg.PDFPath) == "" {
				return nil, errors.New("display.pdf_path is required for the pdf sink")
			}
			sinks = append(sinks, NewPDFSink(cfg.PDFPath))
		default:
			return nil, fmt.Errorf("unknown display sink %q", n)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

// MultiSink flushes to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) Flush(ctx context.Context, f Frame) error {
	for _, s := range m {
		if err := s.Flush(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// LogSink writes each changed region as a structured log line.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Flush(ctx context.Context, f Frame) error {
	_ = ctx
	dirty := 0
	for _, r := range f.Regions {
		if !r.Dirty {
			continue
		}
		dirty++
		if !r.Present {
			s.log.Debug("panel region", logx.Uint64("frame", f.Seq), logx.String("region", r.Region.String()), logx.Bool("blank", true))
			continue
		}
		s.log.Info("panel region", logx.Uint64("frame", f.Seq), logx.String("region", r.Region.String()), logx.String("content", r.Content.String()))
	}
	s.log.Debug("panel rendered", logx.Uint64("frame", f.Seq), logx.Bool("full", f.Full), logx.Int("dirty", dirty))
	return nil
}

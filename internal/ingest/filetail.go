package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"sentinelforge/internal/config"
	"sentinelforge/internal/model"
)

const tailPollInterval = 200 * time.Millisecond

// StartFileTail follows every configured file in its own goroutine.
func StartFileTail(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.Event, logger *slog.Logger) {
	current := cfg.Get().Ingest.FileTail
	if !current.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		t := &fileTailer{path: path, startAtEnd: current.StartAtEnd, parser: parser, out: out, logger: logger}
		go t.run(ctx)
	}
}

type fileTailer struct {
	path       string
	startAtEnd bool
	parser     *Parser
	out        chan<- model.Event
	logger     *slog.Logger
}

// run reopens the file whenever it is truncated, replaced or unreadable.
// Only the first open honours startAtEnd; later opens read from the start.
func (t *fileTailer) run(ctx context.Context) {
	for ctx.Err() == nil {
		f, err := os.Open(t.path)
		if err != nil {
			if t.logger != nil {
				t.logger.Warn("tail open failed", "path", t.path, "err", err)
			}
			if !BackoffSleep(ctx, 500*time.Millisecond) {
				return
			}
			continue
		}
		err = t.follow(ctx, f)
		_ = f.Close()
		t.startAtEnd = false
		if err != nil && t.logger != nil {
			t.logger.Warn("tail read error", "path", t.path, "err", err)
		}
	}
}

func (t *fileTailer) follow(ctx context.Context, f *os.File) error {
	var offset int64
	if t.startAtEnd {
		pos, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}
		offset = pos
	}
	opened, err := f.Stat()
	if err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	var partial string
	for {
		line, err := reader.ReadString('\n')
		switch {
		case err == nil:
			line = partial + line
			partial = ""
			offset += int64(len(line))
			processLine(ctx, t.parser, t.out, t.logger, "file_tail", line)
			continue
		case !errors.Is(err, io.EOF):
			return err
		}

		// keep an unterminated tail until the writer finishes the line
		partial += line
		if !BackoffSleep(ctx, tailPollInterval) {
			return nil
		}
		info, statErr := os.Stat(t.path)
		if statErr != nil {
			continue
		}
		if info.Size() < offset+int64(len(partial)) || !os.SameFile(opened, info) {
			if t.logger != nil {
				t.logger.Info("tail reopening", "path", t.path, "reason", "truncated or replaced")
			}
			return nil
		}
	}
}

// Package watch tails a local build agent log and cuts it into failure
// segments that can be classified without calling back into the CI server.
package watch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

var (
	// failureRegex marks the first line of a failure.
	failureRegex = regexp.MustCompile(`(##\[error\]|^\s*Error:|^\s*│ Error:|\bFAILED\b|\bfatal:|\bexit code [1-9])`)
	// boundaryRegex marks a line that ends the current step.
	boundaryRegex = regexp.MustCompile(`^(##\[section\](Starting|Finishing|Async Command Start)|Finishing: )`)
)

const (
	defaultQuiet        = 500 * time.Millisecond
	defaultContextLines = 20
	maxSegmentLines     = 2000
)

// Segment is one failure cut out of a followed log. Lines holds the context
// that preceded the failure followed by the failure itself.
type Segment struct {
	ID         string
	DetectedAt time.Time
	Lines      []string
}

// Text joins the segment lines.
func (s Segment) Text() string {
	return strings.Join(s.Lines, "\n")
}

// Options tune a Watcher.
type Options struct {
	// Quiet is how long the log may stay silent before an open segment is
	// considered complete.
	Quiet time.Duration
	// ContextLines is the number of lines kept from before the failure. They
	// usually carry the working directory and init output.
	ContextLines int
	// FromStart reads the existing file content instead of only new lines.
	FromStart bool
	// Poll uses polling instead of inotify.
	Poll bool
}

// Watcher follows a build log file and emits failure segments.
type Watcher struct {
	logger   *zap.Logger
	path     string
	opts     Options
	segments chan<- Segment
	done     chan struct{}
}

// NewWatcher initializes a watcher for the log at path.
func NewWatcher(logger *zap.Logger, path string, segments chan<- Segment, opts Options) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("a log file path is required")
	}
	if segments == nil {
		return nil, errors.New("a segment channel is required")
	}
	if opts.Quiet <= 0 {
		opts.Quiet = defaultQuiet
	}
	if opts.ContextLines < 0 {
		opts.ContextLines = 0
	} else if opts.ContextLines == 0 {
		opts.ContextLines = defaultContextLines
	}
	return &Watcher{
		logger:   logger.Named("log-watcher"),
		path:     path,
		opts:     opts,
		segments: segments,
		done:     make(chan struct{}),
	}, nil
}

// Start begins tailing the log file. The loop runs until ctx is cancelled or
// the tailer stops; Done is closed afterwards.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("Starting build log watcher.", zap.String("path", w.path), zap.Bool("from_start", w.opts.FromStart))

	location := &tail.SeekInfo{Offset: 0, Whence: 2}
	if w.opts.FromStart {
		location = nil
	}
	t, err := tail.TailFile(w.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      w.opts.Poll,
		Location:  location,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail build log file: %w", err)
	}

	go w.monitorLoop(ctx, t)
	return nil
}

// Done is closed once the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) monitorLoop(ctx context.Context, t *tail.Tail) {
	defer close(w.done)
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	var (
		recent  []string
		current []string
	)
	timeout := time.NewTimer(w.opts.Quiet)
	if !timeout.Stop() {
		<-timeout.C
	}
	stopTimer := func() {
		if !timeout.Stop() {
			select {
			case <-timeout.C:
			default:
			}
		}
	}

	flush := func() {
		if len(current) == 0 {
			return
		}
		seg := Segment{ID: uuid.NewString(), DetectedAt: time.Now(), Lines: current}
		current = nil
		recent = nil
		w.logger.Info("Failure segment detected.", zap.String("segment_id", seg.ID), zap.Int("lines", len(seg.Lines)))
		select {
		case w.segments <- seg:
		case <-ctx.Done():
			w.logger.Warn("Context cancelled while sending failure segment.", zap.String("segment_id", seg.ID))
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping build log watcher.")
			return

		case line, ok := <-t.Lines:
			if !ok {
				flush()
				w.logger.Info("Build log tailer channel closed.")
				return
			}
			if line.Err != nil {
				w.logger.Warn("Error reading from build log", zap.Error(line.Err))
				continue
			}
			text := strings.TrimRight(line.Text, "\r")

			if len(current) > 0 {
				if boundaryRegex.MatchString(text) {
					stopTimer()
					flush()
					recent = appendRecent(recent, text, w.opts.ContextLines)
					continue
				}
				if len(current) < maxSegmentLines {
					current = append(current, text)
				}
				timeout.Reset(w.opts.Quiet)
				continue
			}

			if failureRegex.MatchString(text) {
				current = append(append(current, recent...), text)
				timeout.Reset(w.opts.Quiet)
				continue
			}
			recent = appendRecent(recent, text, w.opts.ContextLines)

		case <-timeout.C:
			flush()
		}
	}
}

// appendRecent keeps the last n lines.
func appendRecent(recent []string, line string, n int) []string {
	if n == 0 {
		return nil
	}
	recent = append(recent, line)
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	return recent
}

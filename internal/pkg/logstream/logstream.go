// Package logstream persists install run output as JSON lines and replays it
// to any number of followers while the run is still writing.
package logstream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"
)

const (
	EventMessage = "message"
	EventInfo    = "info"
	EventError   = "error"
	EventDone    = "done"
)

// Event is one log record. ID is its 1-based position in the file; it is
// assigned on read and never stored.
type Event struct {
	ID    int    `json:"id,omitempty"`
	Event string `json:"event"`
	Data  string `json:"data"`
}

func (e Event) Terminal() bool {
	return e.Event == EventDone || e.Event == EventError
}

// PlainLine is the human readable form used by raw log downloads.
func (e Event) PlainLine() string {
	switch e.Event {
	case EventInfo:
		return "[INFO] " + e.Data
	case EventError:
		return "[ERROR] " + e.Data
	case EventDone:
		return "[DONE] " + e.Data
	default:
		return e.Data
	}
}

type Writer struct {
	mu   sync.Mutex
	file *os.File
}

func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return &Writer{file: f}, nil
}

func (w *Writer) Emit(event, data string) error {
	line, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ParseLine decodes one stored record. Lines that are not JSON are treated as
// plain messages.
func ParseLine(line string) Event {
	line = strings.TrimRight(line, "\r\n")
	if !gjson.Valid(line) {
		return Event{Event: EventMessage, Data: line}
	}
	res := gjson.Parse(line)
	ev := Event{
		Event: res.Get("event").String(),
		Data:  res.Get("data").String(),
	}
	if ev.Event == "" {
		ev.Event = EventMessage
	}
	return ev
}

// ReadAll returns every record currently in the file.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if scanner.Text() == "" {
			continue
		}
		ev := ParseLine(scanner.Text())
		ev.ID = len(events) + 1
		events = append(events, ev)
	}
	return events, scanner.Err()
}

var pollInterval = 500 * time.Millisecond

// ErrStopFollow may be returned by the callback to end Follow without error.
var ErrStopFollow = errors.New("stop follow")

// Follow replays path from the record after `after` and keeps delivering
// appended records until isDone reports true and the file is drained, or ctx
// ends.
func Follow(ctx context.Context, path string, after int, isDone func() bool, onEvent func(Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("unable to watch run log: %w", err)
	}

	reader := bufio.NewReader(f)
	var partial strings.Builder
	seq := 0

	drain := func() error {
		for {
			chunk, err := reader.ReadString('\n')
			partial.WriteString(chunk)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			line := partial.String()
			partial.Reset()
			if strings.TrimSpace(line) == "" {
				continue
			}
			seq++
			if seq <= after {
				continue
			}
			ev := ParseLine(line)
			ev.ID = seq
			if err := onEvent(ev); err != nil {
				return err
			}
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		// sample before draining so records written just before completion
		// are not lost
		done := isDone()
		if err := drain(); err != nil {
			if errors.Is(err, ErrStopFollow) {
				return nil
			}
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-watcher.Errors:
			if err != nil {
				return fmt.Errorf("watcher error: %w", err)
			}
		case <-watcher.Events:
		case <-ticker.C:
		}
	}
}

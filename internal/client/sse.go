package client

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"autovpn-backend/internal/pkg/logstream"
)

// readEvents parses a text/event-stream body. Blocks are separated by a
// blank line; multiple data lines are joined with "\n". A block without an
// event line is a "message". Iteration stops when fn returns false.
func readEvents(r io.Reader, fn func(logstream.Event) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data []string
	var id int
	dispatch := func() bool {
		if event == "" && data == nil {
			return true
		}
		ev := logstream.Event{ID: id, Event: event, Data: strings.Join(data, "\n")}
		if ev.Event == "" {
			ev.Event = logstream.EventMessage
		}
		event, data, id = "", nil, 0
		return fn(ev)
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if !dispatch() {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		case "id":
			id, _ = strconv.Atoi(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	dispatch()
	return nil
}

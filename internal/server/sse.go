package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var errNoStreaming = errors.New("response writer cannot stream events")

// runStream writes the progress of one run as text/event-stream frames.
// Frames carry increasing ids so a client can tell where it dropped off.
type runStream struct {
	w      http.ResponseWriter
	flush  http.Flusher
	lastID int
}

func openRunStream(w http.ResponseWriter) (*runStream, error) {
	flush, ok := w.(http.Flusher)
	if !ok {
		return nil, errNoStreaming
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flush.Flush()
	return &runStream{w: w, flush: flush}, nil
}

func (s *runStream) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	s.lastID++
	return s.frame(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", s.lastID, event, data))
}

// keepAlive writes a comment frame so proxies do not drop an idle stream
func (s *runStream) keepAlive() error {
	return s.frame(": ping\n\n")
}

func (s *runStream) fail(message string) error {
	return s.send("error", map[string]string{"error": message})
}

func (s *runStream) frame(text string) error {
	if _, err := fmt.Fprint(s.w, text); err != nil {
		return err
	}
	s.flush.Flush()
	return nil
}

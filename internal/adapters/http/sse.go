package httpadapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

const sseDone = "data: [DONE]\n\n"

type sseSessionEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type sseChunkEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type sseSourcesEvent struct {
	Type    string            `json:"type"`
	Sources []domain.Citation `json:"sources"`
}

type sseErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// sseWriter emits `data: <json>\n\n` frames. After the first write error it stops
// writing; callers keep draining their source.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming is not supported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) event(payload any) {
	if s.err != nil {
		return
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		s.err = err
		return
	}
	body := bytes.TrimRight(buf.Bytes(), "\n")
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", body); err != nil {
		s.err = err
		return
	}
	s.flusher.Flush()
}

func (s *sseWriter) done() {
	if s.err != nil {
		return
	}
	if _, err := io.WriteString(s.w, sseDone); err != nil {
		s.err = err
		return
	}
	s.flusher.Flush()
}

// queryStream serves session_id, chunk*, sources; a failure replaces sources with one
// error event. [DONE] always terminates the stream.
func (rt *Router) queryStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(w, r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := rt.queries.QueryStream(r.Context(), req)
	if err != nil && streamRejects(err) {
		writeDomainError(w, err)
		return
	}

	sse, sseErr := newSSEWriter(w)
	if sseErr != nil {
		if result != nil {
			for range result.Events {
			}
		}
		writeError(w, http.StatusInternalServerError, sseErr.Error())
		return
	}
	defer sse.done()

	if err != nil {
		rt.logger.Warn("stream_rejected", "request_id", req.RequestID, "error", err)
		sse.event(sseErrorEvent{Type: "error", Error: err.Error()})
		return
	}

	sse.event(sseSessionEvent{Type: "session_id", SessionID: result.SessionID})

	var streamErr error
	for ev := range result.Events {
		if ev.Err != nil {
			streamErr = ev.Err
			continue
		}
		sse.event(sseChunkEvent{Type: "chunk", Content: ev.Text})
	}

	if streamErr != nil {
		rt.logger.Warn("stream_failed", "request_id", req.RequestID, "session_id", result.SessionID, "error", streamErr)
		sse.event(sseErrorEvent{Type: "error", Error: streamErr.Error()})
		return
	}
	sse.event(sseSourcesEvent{Type: "sources", Sources: nonNilCitations(result.Citations)})
}

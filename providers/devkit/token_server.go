// Package devkit provides a scripted token endpoint and conformance checks for
// provider adapters.
package devkit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

type RecordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Header      http.Header
	Body        []byte
}

// Form decodes a form-encoded body.
func (r RecordedRequest) Form() url.Values {
	values, err := url.ParseQuery(string(r.Body))
	if err != nil {
		return url.Values{}
	}
	return values
}

// JSON decodes a JSON object body.
func (r RecordedRequest) JSON() map[string]any {
	decoded := map[string]any{}
	if err := json.Unmarshal(r.Body, &decoded); err != nil {
		return map[string]any{}
	}
	return decoded
}

func (r RecordedRequest) BasicAuth() (string, string, bool) {
	req := &http.Request{Header: r.Header}
	return req.BasicAuth()
}

type TokenScript struct {
	Status      int
	ContentType string
	Body        string
	Delay       time.Duration
}

// JSONToken scripts a 200 JSON answer.
func JSONToken(body string) TokenScript {
	return TokenScript{Status: http.StatusOK, ContentType: "application/json", Body: body}
}

// TokenServer is an httptest token endpoint that replays scripts in order and
// keeps every request it receives.
type TokenServer struct {
	*httptest.Server

	mu       sync.Mutex
	scripts  []TokenScript
	requests []RecordedRequest
}

func NewTokenServer(scripts ...TokenScript) *TokenServer {
	server := &TokenServer{scripts: append([]TokenScript(nil), scripts...)}
	server.Server = httptest.NewServer(http.HandlerFunc(server.handle))
	return server
}

func (s *TokenServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Header:      r.Header.Clone(),
		Body:        body,
	})
	script := TokenScript{Status: http.StatusOK, ContentType: "application/json", Body: `{}`}
	if idx := len(s.requests) - 1; idx < len(s.scripts) {
		script = s.scripts[idx]
	} else if len(s.scripts) > 0 {
		script = s.scripts[len(s.scripts)-1]
	}
	s.mu.Unlock()

	if script.Delay > 0 {
		select {
		case <-time.After(script.Delay):
		case <-r.Context().Done():
			return
		}
	}
	if strings.TrimSpace(script.ContentType) != "" {
		w.Header().Set("Content-Type", script.ContentType)
	}
	status := script.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, script.Body)
}

func (s *TokenServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

func (s *TokenServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Last returns the most recent request, or a zero value when none arrived.
func (s *TokenServer) Last() RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}
	}
	return s.requests[len(s.requests)-1]
}

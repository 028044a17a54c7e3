package providers

import (
	"net/http"
	"time"

	"github.com/goliatone/go-connectors/core"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultRequestTimeout = 10 * time.Second

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Settings carries the transport knobs shared by every adapter.
type Settings struct {
	HTTPClient HTTPDoer
	Clock      core.Clock
	Logger     core.Logger
	Timeout    time.Duration
}

type Option func(*Settings)

func WithHTTPClient(client HTTPDoer) Option {
	return func(s *Settings) {
		if client != nil {
			s.HTTPClient = client
		}
	}
}

func WithClock(clock core.Clock) Option {
	return func(s *Settings) {
		if clock != nil {
			s.Clock = clock
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Settings) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Settings) {
		if timeout > 0 {
			s.Timeout = timeout
		}
	}
}

func ResolveSettings(opts ...Option) Settings {
	settings := Settings{
		Clock:   func() time.Time { return time.Now().UTC() },
		Logger:  glog.Nop(),
		Timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	if settings.HTTPClient == nil {
		settings.HTTPClient = NewHTTPClient(settings.Timeout)
	}
	return settings
}

// NewHTTPClient returns a client that never follows redirects, so one
// exchange is one request on the wire.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Package resolve implements client.Resolver against the live site's
// HTTP APIs.
//
// Web resolves a public room: canonical id and owner, the viewer's uid
// when a SESSDATA cookie is configured, and the chat servers with their
// auth token from a WBI-signed getDanmuInfo call. OpenLive starts an open
// platform app session and returns its servers and auth body.
//
// Every HTTP call runs in its own OpenTelemetry span.
package resolve

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/xyself/blivedm/pkg/client"
)

// Default API endpoints.
const (
	DefaultLiveAPI = "https://api.live.bilibili.com"
	DefaultMainAPI = "https://api.bilibili.com"
	DefaultOpenAPI = "https://live-open.biliapi.com"
)

const defaultTracerName = "github.com/xyself/blivedm/pkg/resolve"

type options struct {
	client    *http.Client
	tracer    trace.Tracer
	logger    *slog.Logger
	liveAPI   string
	mainAPI   string
	openAPI   string
	sessData  string
	buvid     string
	userAgent string
	now       func() time.Time
	nonce     func() string
}

// Option configures a resolver.
type Option func(*options)

// WithHTTPClient sets the HTTP client. Default: a client with a 10s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithTracer sets the tracer. Default: the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBaseURLs overrides the API endpoints. Empty values keep the default.
func WithBaseURLs(liveAPI, mainAPI, openAPI string) Option {
	return func(o *options) {
		if liveAPI != "" {
			o.liveAPI = liveAPI
		}
		if mainAPI != "" {
			o.mainAPI = mainAPI
		}
		if openAPI != "" {
			o.openAPI = openAPI
		}
	}
}

// WithSessData authenticates web calls with a SESSDATA cookie, which lets
// the chat server attribute the session to a logged-in viewer.
func WithSessData(sessData string) Option {
	return func(o *options) {
		o.sessData = sessData
	}
}

// WithIdentity sets the browser id and user agent sent to the web APIs.
func WithIdentity(buvid, userAgent string) Option {
	return func(o *options) {
		if buvid != "" {
			o.buvid = buvid
		}
		if userAgent != "" {
			o.userAgent = userAgent
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    slog.Default(),
		liveAPI:   DefaultLiveAPI,
		mainAPI:   DefaultMainAPI,
		openAPI:   DefaultOpenAPI,
		buvid:     client.DefaultBuvid,
		userAgent: client.DefaultUserAgent,
		now:       time.Now,
		nonce:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(defaultTracerName)
	}
	return o
}

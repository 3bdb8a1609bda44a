package resolve

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrAPI matches every error reported by the remote API, either through
// its status code or through a non-zero "code" in the response envelope.
var ErrAPI = errors.New("resolve: api error")

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// APIError is a response envelope with a non-zero code.
type APIError struct {
	Endpoint string
	Code     int
	Message  string
}

// Error returns the error message.
func (e *APIError) Error() string {
	return fmt.Sprintf("resolve: %s: code %d: %s", e.Endpoint, e.Code, e.Message)
}

// Is reports whether target is ErrAPI.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// envelope is the common response shape of the live APIs.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends req in a client span named after endpoint and decodes the
// envelope. A non-zero code is returned in the envelope, not as an error;
// callers decide whether it is fatal.
func (o *options) do(req *http.Request, endpoint string) (*envelope, error) {
	ctx, span := o.tracer.Start(req.Context(), req.Method+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
		),
	)
	defer span.End()

	env, err := o.doSpan(req.WithContext(ctx), endpoint, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("blivedm.api.code", env.Code))
	return env, nil
}

func (o *options) doSpan(req *http.Request, endpoint string, span trace.Span) (*envelope, error) {
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolve: %s returned status %d: %w", endpoint, resp.StatusCode, ErrAPI)
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&env); err != nil {
		return nil, fmt.Errorf("resolve: %s: invalid response: %w", endpoint, err)
	}
	return &env, nil
}

// data decodes the envelope payload into out, failing on a non-zero code.
func (e *envelope) data(endpoint string, out any) error {
	if e.Code != 0 {
		return &APIError{Endpoint: endpoint, Code: e.Code, Message: e.Message}
	}
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("resolve: %s: invalid data: %w", endpoint, err)
	}
	return nil
}

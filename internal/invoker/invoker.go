package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/opendata-gateway/go/internal/metrics"
	"github.com/opendata-gateway/go/internal/models"
)

// ResultType discriminates backend invocation outcomes
type ResultType string

const (
	ResultSuccess ResultType = "success"
	ResultError   ResultType = "error"
)

// Result is the outcome of one backend invocation. On ResultError the
// caller must not interpret Data.
type Result struct {
	Type      ResultType
	Status    int
	Data      []byte
	Headers   http.Header
	LatencyMs int64
	Reason    string
	Err       error
}

// Invoker issues outbound HTTP and SOAP calls. It holds no shared mutable
// state; calls run fully in parallel across requests.
type Invoker struct {
	client  *http.Client
	timeout time.Duration
}

func New(timeout time.Duration) *Invoker {
	return &Invoker{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Call builds and sends the backend request for an already validated
// payload, measuring wall-clock latency around the exchange. Context
// cancellation aborts the outbound call.
func (inv *Invoker) Call(ctx context.Context, version *models.ApiVersion, payload *Payload) *Result {
	switch version.Type {
	case models.ProtocolSOAP:
		return inv.callSOAP(ctx, version, payload)
	default:
		return inv.callHTTP(ctx, version, payload)
	}
}

func (inv *Invoker) callHTTP(ctx context.Context, version *models.ApiVersion, payload *Payload) *Result {
	target := BuildURL(version.URL, payload.PathParams, payload.Query)

	var body io.Reader
	if version.HasBody && payload.Body != nil {
		encoded, err := json.Marshal(payload.Body)
		if err != nil {
			return transportError("encode request body", err, 0)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, version.Method, target, body)
	if err != nil {
		return transportError("build request", err, 0)
	}

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	applyHeaders(req, payload.Headers, version.StaticHeaders, version.AllowHeaderOverride)

	return inv.do(ctx, req)
}

func (inv *Invoker) callSOAP(ctx context.Context, version *models.ApiVersion, payload *Payload) *Result {
	rendered := RenderSOAP(version.SOAPTemplate, payload.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, version.URL, bytes.NewReader([]byte(rendered)))
	if err != nil {
		return transportError("build request", err, 0)
	}

	// SOAP layers static headers under caller headers: the caller may refine
	// transport headers, the content type stays XML.
	for key, value := range version.StaticHeaders {
		req.Header.Set(key, value)
	}
	for key, value := range payload.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "text/xml")

	return inv.do(ctx, req)
}

// applyHeaders merges static endpoint headers with caller headers. Static
// headers are applied after caller headers, so by default they win; an
// endpoint opting into AllowHeaderOverride lets the caller override them.
func applyHeaders(req *http.Request, caller, static map[string]string, allowOverride bool) {
	if allowOverride {
		for key, value := range static {
			req.Header.Set(key, value)
		}
		for key, value := range caller {
			req.Header.Set(key, value)
		}
		return
	}

	for key, value := range caller {
		req.Header.Set(key, value)
	}
	for key, value := range static {
		req.Header.Set(key, value)
	}
}

func (inv *Invoker) do(ctx context.Context, req *http.Request) *Result {
	callCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}
	req = req.WithContext(callCtx)

	start := time.Now()
	resp, err := inv.client.Do(req)
	latency := time.Since(start)
	metrics.BackendLatency.Observe(latency.Seconds())

	if err != nil {
		return transportError("backend call failed", err, latency.Milliseconds())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError("read backend response", err, latency.Milliseconds())
	}

	// A non-positive status is a transport-layer failure, not a backend
	// response.
	if resp.StatusCode <= 0 {
		return transportError("backend returned no status", nil, latency.Milliseconds())
	}

	return &Result{
		Type:      ResultSuccess,
		Status:    resp.StatusCode,
		Data:      data,
		Headers:   resp.Header,
		LatencyMs: latency.Milliseconds(),
	}
}

func transportError(reason string, err error, latencyMs int64) *Result {
	return &Result{
		Type:      ResultError,
		Reason:    reason,
		Err:       err,
		LatencyMs: latencyMs,
	}
}

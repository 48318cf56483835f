package gateway

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opendata-gateway/go/internal/constants"
	"github.com/opendata-gateway/go/internal/gateway"
	"github.com/opendata-gateway/go/internal/httputil"
	"github.com/opendata-gateway/go/internal/invoker"
)

// callRequest is the inbound envelope: the caller supplies the pieces the
// target version declares, and the gateway assembles the backend request.
type callRequest struct {
	Headers    map[string]string `json:"headers"`
	Query      map[string]string `json:"query"`
	PathParams map[string]string `json:"pathParams"`
	Body       any               `json:"body"`
}

// Handler terminates POST /{identifier}/{apiVersion}.
type Handler struct {
	dispatcher *gateway.Dispatcher
}

func NewHandler(d *gateway.Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// Call handles one metered gateway invocation
//
//	@Summary		Invoke a backend API
//	@Description	Resolve the permit named by the identifier, enforce its policy and relay the call to the target backend version. The backend status and body pass through unchanged.
//	@Tags			gateway
//	@Accept			json
//	@Produce		json
//	@Param			identifier	path		string		true	"Permit key"
//	@Param			apiVersion	path		int			true	"Target version number"
//	@Param			request		body		callRequest	false	"Call payload"
//	@Success		200			{object}	any						"Backend response (status passes through)"
//	@Failure		400			{object}	httputil.ErrorResponse	"Payload rejected by the version's schema"
//	@Failure		402			{object}	httputil.ErrorResponse	"Insufficient funds"
//	@Failure		404			{object}	httputil.ErrorResponse	"Unknown permit or version"
//	@Failure		409			{object}	httputil.ErrorResponse	"Permit or version disabled"
//	@Failure		429			{object}	httputil.ErrorResponse	"Rate limit exceeded"
//	@Failure		502			{object}	httputil.ErrorResponse	"Backend unreachable"
//	@Router			/{identifier}/{apiVersion} [post]
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	identifier := r.PathValue("identifier")
	versionNumber, err := strconv.Atoi(r.PathValue("apiVersion"))
	if err != nil || versionNumber < 1 {
		httputil.WriteAPIError(w, constants.ErrVersionNotFound)
		return
	}

	span.SetAttributes(
		attribute.String("gateway.permit", identifier),
		attribute.Int("gateway.version", versionNumber),
	)

	payload := &invoker.Payload{}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteAPIError(w, constants.ErrInvalidRequestBody)
		return
	}
	if len(raw) > 0 {
		var req callRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			span.SetStatus(codes.Error, "JSON decode failed")
			span.RecordError(err)
			httputil.WriteAPIError(w, constants.ErrInvalidRequestBody)
			return
		}
		payload.Headers = req.Headers
		payload.Query = req.Query
		payload.PathParams = req.PathParams
		payload.Body = req.Body
	}

	outcome := h.dispatcher.Execute(ctx, identifier, versionNumber, payload, gateway.CallerInfo{
		IP: callerIP(r),
	})

	for k, v := range outcome.Headers {
		w.Header().Set(k, v)
	}

	if outcome.Err != nil {
		span.SetAttributes(attribute.String("gateway.errorCode", outcome.Err.Code))
		httputil.WriteAPIError(w, *outcome.Err)
		return
	}

	if outcome.ContentType != "" {
		w.Header().Set("Content-Type", outcome.ContentType)
	}
	w.WriteHeader(outcome.Status)
	_, _ = w.Write(outcome.Body)
}

func callerIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

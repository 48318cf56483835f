package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/opendata-gateway/go/internal/constants"
	"github.com/opendata-gateway/go/internal/invoker"
	"github.com/opendata-gateway/go/internal/logger"
	"github.com/opendata-gateway/go/internal/metrics"
	"github.com/opendata-gateway/go/internal/models"
	"github.com/opendata-gateway/go/internal/policy"
)

// PermitStore resolves permits by their API key identifier
type PermitStore interface {
	FindByKey(ctx context.Context, key string) (*models.Permit, error)
}

// PolicyStore resolves the policy bound to a permit
type PolicyStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Policy, error)
}

// EndpointStore resolves the API endpoint a permit targets
type EndpointStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.ApiEndpoint, error)
}

// UsageLog appends one record per attempted call
type UsageLog interface {
	Append(ctx context.Context, entry *models.UsageLogEntry) error
}

// PolicyEvaluator runs admission control and metering for one call
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, permit *models.Permit, pol *models.Policy) (*policy.Verdict, error)
}

// BackendInvoker issues the outbound backend call
type BackendInvoker interface {
	Call(ctx context.Context, version *models.ApiVersion, payload *invoker.Payload) *invoker.Result
}

// CallerInfo carries request metadata recorded in the usage log
type CallerInfo struct {
	IP string
}

// Outcome is the dispatcher's answer for one inbound call. Headers are
// emitted regardless of success; Err set means the body is not a backend
// response.
type Outcome struct {
	Status      int
	Body        []byte
	ContentType string
	Headers     map[string]string
	Err         *constants.APIError
}

// Dispatcher is the gateway entry point: it resolves the permit and target
// version, runs the policy engine, invokes the backend and records the call.
type Dispatcher struct {
	permits   PermitStore
	policies  PolicyStore
	endpoints EndpointStore
	usageLog  UsageLog
	engine    PolicyEvaluator
	invoker   BackendInvoker
}

func NewDispatcher(
	permits PermitStore,
	policies PolicyStore,
	endpoints EndpointStore,
	usageLog UsageLog,
	engine PolicyEvaluator,
	backend BackendInvoker,
) *Dispatcher {
	return &Dispatcher{
		permits:   permits,
		policies:  policies,
		endpoints: endpoints,
		usageLog:  usageLog,
		engine:    engine,
		invoker:   backend,
	}
}

// Execute runs the full dispatch pipeline for one inbound call.
func (d *Dispatcher) Execute(ctx context.Context, identifier string, versionNumber int, payload *invoker.Payload, caller CallerInfo) *Outcome {
	started := time.Now()

	permit, apiErr := d.resolvePermit(ctx, identifier)
	if apiErr != nil {
		metrics.GatewayCalls.WithLabelValues("rejected").Inc()
		return failure(apiErr, nil)
	}

	version, apiErr := d.resolveVersion(ctx, permit, versionNumber)
	if apiErr != nil {
		metrics.GatewayCalls.WithLabelValues("rejected").Inc()
		return failure(apiErr, nil)
	}

	// Payload validation runs before the policy engine so a malformed call
	// never moves money.
	if apiErr := invoker.ValidateRequest(version, payload); apiErr != nil {
		metrics.GatewayCalls.WithLabelValues("invalid").Inc()
		return failure(apiErr, nil)
	}

	pol, err := d.policies.FindByID(ctx, permit.PolicyID)
	if err != nil || pol == nil {
		logger.Error("policy lookup failed", zap.String("permit", permit.Key), zap.Error(err))
		metrics.GatewayCalls.WithLabelValues("error").Inc()
		return failure(&constants.ErrInternalError, nil)
	}

	verdict, err := d.engine.Evaluate(ctx, permit, pol)
	if err != nil {
		logger.Error("policy evaluation failed", zap.String("permit", permit.Key), zap.Error(err))
		metrics.GatewayCalls.WithLabelValues("error").Inc()
		return failure(&constants.ErrInternalError, nil)
	}

	if !verdict.Passed {
		// Rejections are recorded: the rate limiter's window query counts
		// them on subsequent calls.
		d.record(ctx, permit, caller, started, verdict, false, 0, verdict.Err.Code,
			fmt.Sprintf("%s v%d", identifier, versionNumber), verdict.Err.Code)
		metrics.GatewayCalls.WithLabelValues("rejected").Inc()
		return failure(verdict.Err, verdict.Headers)
	}

	result := d.invoker.Call(ctx, version, payload)

	if result.Type == invoker.ResultError {
		// The charge already stands; flag the call so reconciliation tooling
		// can find refund-worthy cases.
		logFields := []zap.Field{
			zap.String("permit", permit.Key),
			zap.Int64("cost", verdict.Cost),
			zap.Error(result.Err),
		}
		if verdict.TransactionID != nil {
			logFields = append(logFields, zap.String("transactionId", verdict.TransactionID.Hex()))
		}
		logger.Warn("backend transport failure after settlement", logFields...)

		d.record(ctx, permit, caller, started, verdict, false, result.LatencyMs,
			constants.CodeTransportError,
			fmt.Sprintf("%s v%d", identifier, versionNumber), result.Reason)
		metrics.GatewayCalls.WithLabelValues("transport_error").Inc()
		return failure(&constants.ErrTransport, verdict.Headers)
	}

	headers := make(map[string]string, len(verdict.Headers)+1)
	for k, v := range verdict.Headers {
		headers[k] = v
	}
	headers["x-opendata-latency"] = strconv.FormatInt(result.LatencyMs, 10)

	d.record(ctx, permit, caller, started, verdict, true, result.LatencyMs, "",
		fmt.Sprintf("%s v%d", identifier, versionNumber),
		strconv.Itoa(result.Status))
	metrics.GatewayCalls.WithLabelValues("success").Inc()

	return &Outcome{
		Status:      result.Status,
		Body:        result.Data,
		ContentType: result.Headers.Get("Content-Type"),
		Headers:     headers,
	}
}

func (d *Dispatcher) resolvePermit(ctx context.Context, identifier string) (*models.Permit, *constants.APIError) {
	permit, err := d.permits.FindByKey(ctx, identifier)
	if err != nil {
		logger.Error("permit lookup failed", zap.Error(err))
		return nil, &constants.ErrInternalError
	}
	if permit == nil {
		return nil, &constants.ErrPermitNotFound
	}
	if permit.Blocked {
		apiErr := constants.ErrPermitBlocked
		if permit.BlockReason != "" {
			apiErr = apiErr.WithMessage(permit.BlockReason)
		}
		return nil, &apiErr
	}
	if !permit.Enabled {
		return nil, &constants.ErrPermitDisabled
	}

	now := time.Now()
	if permit.ValidFrom != nil && now.Before(*permit.ValidFrom) {
		return nil, &constants.ErrPermitNotYetValid
	}
	if permit.ValidUntil != nil && now.After(*permit.ValidUntil) {
		return nil, &constants.ErrPermitExpired
	}

	return permit, nil
}

func (d *Dispatcher) resolveVersion(ctx context.Context, permit *models.Permit, versionNumber int) (*models.ApiVersion, *constants.APIError) {
	endpoint, err := d.endpoints.FindByID(ctx, permit.EndpointID)
	if err != nil {
		logger.Error("endpoint lookup failed", zap.Error(err))
		return nil, &constants.ErrInternalError
	}
	if endpoint == nil {
		return nil, &constants.ErrVersionNotFound
	}
	if !endpoint.Enabled {
		apiErr := constants.ErrEndpointDisabled
		if endpoint.DisabledMessage != "" {
			apiErr = apiErr.WithMessage(endpoint.DisabledMessage)
		}
		return nil, &apiErr
	}

	version := endpoint.VersionNumber(versionNumber)
	if version == nil {
		return nil, &constants.ErrVersionNotFound
	}
	if !version.Enabled {
		apiErr := constants.ErrEndpointDisabled
		if version.DisabledMessage != "" {
			apiErr = apiErr.WithMessage(version.DisabledMessage)
		}
		return nil, &apiErr
	}

	return version, nil
}

func (d *Dispatcher) record(
	ctx context.Context,
	permit *models.Permit,
	caller CallerInfo,
	started time.Time,
	verdict *policy.Verdict,
	success bool,
	latencyMs int64,
	errorCode string,
	requestSummary string,
	responseSummary string,
) {
	entry := &models.UsageLogEntry{
		PermitID:        permit.ID,
		At:              time.Now(),
		WindowStart:     started,
		WindowEnd:       time.Now(),
		Success:         success,
		LatencyMs:       latencyMs,
		CallerIP:        caller.IP,
		RequestSummary:  requestSummary,
		ResponseSummary: responseSummary,
		Cost:            verdict.Cost,
		TransactionID:   verdict.TransactionID,
		ErrorCode:       errorCode,
	}

	if err := d.usageLog.Append(ctx, entry); err != nil {
		logger.Error("usage log append failed",
			zap.String("permit", permit.Key),
			zap.Error(err))
	}
}

func failure(apiErr *constants.APIError, headers map[string]string) *Outcome {
	return &Outcome{
		Status:  apiErr.Status,
		Headers: headers,
		Err:     apiErr,
	}
}

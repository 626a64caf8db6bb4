// Package gateway dispatches tool invocations. Every authorization and
// safety check completes, in order, before a secret is decrypted or a
// network call is made, and every terminal state writes exactly one audit
// event before the caller sees the outcome.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
	"github.com/Gokhanagingil/grc-sub011/internal/audit"
	"github.com/Gokhanagingil/grc-sub011/internal/connector"
	"github.com/Gokhanagingil/grc-sub011/internal/policy"
	"github.com/Gokhanagingil/grc-sub011/internal/provider"
	"github.com/Gokhanagingil/grc-sub011/internal/ratelimit"
	"github.com/Gokhanagingil/grc-sub011/internal/ssrf"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
	"github.com/Gokhanagingil/grc-sub011/internal/vault"
)

// Machine-readable denial reasons.
const (
	ReasonNoPolicy             = "no_policy"
	ReasonDisabled             = "disabled"
	ReasonNotAllowlisted       = "not_allowlisted"
	ReasonUnknownTool          = "unknown_tool"
	ReasonNoProvider           = "no_provider"
	ReasonSSRFBlocked          = "ssrf_blocked"
	ReasonRateLimited          = "rate_limited"
	ReasonRunLimit             = "run_limit"
	ReasonInvalidInput         = "invalid_input"
	ReasonVaultFailure         = "vault_failure"
	ReasonBadCredentials       = "credentials_malformed"
	ReasonConnectorError       = "connector_error"
	ReasonConnectorUnavailable = "connector_unavailable"
	ReasonInternalError        = "internal_error"
)

const (
	maxToolKeyLen = 64
	maxRunIDLen   = 128
)

// Denial is the non-success terminal outcome of a dispatch: a policy
// denial, a throttle, or an execution error, always already audited.
type Denial struct {
	Decision  audit.Decision
	Reason    string
	RequestID string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("tool call %s: %s", d.Decision, d.Reason)
}

// RunRequest is one tool invocation.
type RunRequest struct {
	ToolKey string
	Input   map[string]any
	RunID   string
}

// RunResult is a successful invocation's outcome.
type RunResult struct {
	RequestID string          `json:"requestId"`
	ToolKey   string          `json:"toolKey"`
	Data      json.RawMessage `json:"data"`
	LatencyMs float32         `json:"latencyMs"`
}

// Dispatcher orchestrates a single tool invocation across the policy store,
// provider registry, SSRF guard, vault, rate limiter, and connectors.
type Dispatcher struct {
	policies         policy.Store
	providers        provider.Store
	guard            *ssrf.Guard
	vault            *vault.Vault
	limiter          ratelimit.Limiter
	connectors       *connector.Registry
	audit            audit.Appender
	logger           *zap.Logger
	connectorTimeout time.Duration
}

// Config wires a Dispatcher.
type Config struct {
	Policies         policy.Store
	Providers        provider.Store
	Guard            *ssrf.Guard
	Vault            *vault.Vault
	Limiter          ratelimit.Limiter
	Connectors       *connector.Registry
	Audit            audit.Appender
	Logger           *zap.Logger
	ConnectorTimeout time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	timeout := cfg.ConnectorTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		policies:         cfg.Policies,
		providers:        cfg.Providers,
		guard:            cfg.Guard,
		vault:            cfg.Vault,
		limiter:          cfg.Limiter,
		connectors:       cfg.Connectors,
		audit:            cfg.Audit,
		logger:           cfg.Logger,
		connectorTimeout: timeout,
	}
}

// RunTool executes the dispatch state machine. Non-success terminal states
// return a *Denial; malformed requests return a ValidationError before any
// state is touched.
func (d *Dispatcher) RunTool(ctx context.Context, tenantID, actorUserID string, req RunRequest) (*RunResult, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant id is required")
	}
	if req.ToolKey == "" || len(req.ToolKey) > maxToolKeyLen {
		return nil, apperr.Validation("toolKey must be 1-%d characters", maxToolKeyLen)
	}
	if len(req.RunID) > maxRunIDLen {
		return nil, apperr.Validation("runId must be at most %d characters", maxRunIDLen)
	}

	start := time.Now()
	requestID := uuid.New().String()
	call := &callState{
		dispatcher:  d,
		tenantID:    tenantID,
		actorUserID: actorUserID,
		req:         req,
		requestID:   requestID,
		start:       start,
	}

	// POLICY_CHECK
	key, ok := tools.Parse(req.ToolKey)
	if !ok {
		return nil, call.deny(ctx, audit.DecisionDenied, ReasonUnknownTool)
	}
	pol, err := d.policies.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, call.deny(ctx, audit.DecisionDenied, ReasonNoPolicy)
		}
		d.logger.Error("policy lookup failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, call.deny(ctx, audit.DecisionError, ReasonInternalError)
	}
	if !pol.ToolsEnabled {
		return nil, call.deny(ctx, audit.DecisionDenied, ReasonDisabled)
	}
	if !pol.Allows(key) {
		return nil, call.deny(ctx, audit.DecisionDenied, ReasonNotAllowlisted)
	}

	// PROVIDER_LOOKUP
	prov, err := d.providers.FirstEnabledByFamily(ctx, tenantID, key.Family())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, call.deny(ctx, audit.DecisionDenied, ReasonNoProvider)
		}
		d.logger.Error("provider lookup failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, call.deny(ctx, audit.DecisionError, ReasonInternalError)
	}
	conn, ok := d.connectors.ForFamily(key.Family())
	if !ok {
		return nil, call.deny(ctx, audit.DecisionError, ReasonConnectorUnavailable)
	}

	// SSRF_CHECK: registration-time validity does not guarantee call-time
	// validity, so the resolved provider's URL is screened again here.
	if res := d.guard.ValidateURL(ctx, prov.BaseURL); !res.Valid {
		d.logger.Warn("provider base url blocked at dispatch",
			zap.String("tenant_id", tenantID),
			zap.String("provider_id", prov.ID),
			zap.String("reason", res.Reason),
		)
		return nil, call.deny(ctx, audit.DecisionDenied, ReasonSSRFBlocked)
	}

	// RATE_CHECK: the slot is consumed here, at admission.
	if !d.limiter.AllowTenant(tenantID, pol.RateLimitPerMinute) {
		return nil, call.deny(ctx, audit.DecisionThrottled, ReasonRateLimited)
	}
	if req.RunID != "" && !d.limiter.AllowRun(tenantID, req.RunID, pol.MaxCallsPerRun) {
		return nil, call.deny(ctx, audit.DecisionThrottled, ReasonRunLimit)
	}

	// EXECUTE: input shape first, then secrets, then the wire.
	if err := tools.ValidateInput(key, req.Input); err != nil {
		return nil, call.deny(ctx, audit.DecisionDenied, ReasonInvalidInput)
	}
	creds, reason, err := d.decryptCredentials(prov)
	if err != nil {
		d.logger.Error("credential decryption failed",
			zap.String("tenant_id", tenantID),
			zap.String("provider_id", prov.ID),
			zap.Error(err),
		)
		return nil, call.deny(ctx, audit.DecisionError, reason)
	}

	execCtx, cancel := context.WithTimeout(ctx, d.connectorTimeout)
	defer cancel()
	data, err := conn.Execute(execCtx, &connector.Request{
		Tool:     key,
		TenantID: tenantID,
		BaseURL:  prov.BaseURL,
		AuthMode: prov.AuthMode,
		Creds:    creds,
		Input:    req.Input,
	})
	if err != nil {
		d.logger.Warn("connector execution failed",
			zap.String("tenant_id", tenantID),
			zap.String("tool_key", req.ToolKey),
			zap.Error(err),
		)
		return nil, call.deny(ctx, audit.DecisionError, ReasonConnectorError)
	}

	latency := latencyMs(start)
	call.record(ctx, audit.DecisionAllowed, "", latency)
	return &RunResult{
		RequestID: requestID,
		ToolKey:   req.ToolKey,
		Data:      data,
		LatencyMs: latency,
	}, nil
}

// decryptCredentials opens only the slots the auth mode requires. Any vault
// failure aborts the call; partial credentials are never used.
func (d *Dispatcher) decryptCredentials(prov *provider.Config) (connector.Credentials, string, error) {
	var creds connector.Credentials
	var err error

	switch prov.AuthMode {
	case provider.AuthBasic:
		if creds.Username, err = d.decryptSlot(prov.Username); err != nil {
			return connector.Credentials{}, ReasonVaultFailure, err
		}
		if creds.Password, err = d.decryptSlot(prov.Password); err != nil {
			return connector.Credentials{}, ReasonVaultFailure, err
		}
	case provider.AuthToken:
		if creds.Token, err = d.decryptSlot(prov.Token); err != nil {
			return connector.Credentials{}, ReasonVaultFailure, err
		}
	}

	if prov.CustomHeaders.Present() {
		raw, err := d.vault.Decrypt(prov.CustomHeaders.Ciphertext())
		if err != nil {
			return connector.Credentials{}, ReasonVaultFailure, err
		}
		if err := json.Unmarshal([]byte(raw), &creds.CustomHeaders); err != nil {
			return connector.Credentials{}, ReasonBadCredentials, fmt.Errorf("custom headers are not a JSON object: %w", err)
		}
	}
	return creds, "", nil
}

func (d *Dispatcher) decryptSlot(s vault.Secret) (string, error) {
	if !s.Present() {
		return "", nil
	}
	return d.vault.Decrypt(s.Ciphertext())
}

// callState carries the identifiers every terminal path needs for its
// single audit write.
type callState struct {
	dispatcher  *Dispatcher
	tenantID    string
	actorUserID string
	req         RunRequest
	requestID   string
	start       time.Time
}

func (c *callState) deny(ctx context.Context, decision audit.Decision, reason string) *Denial {
	c.record(ctx, decision, reason, latencyMs(c.start))
	return &Denial{Decision: decision, Reason: reason, RequestID: c.requestID}
}

// record writes the audit event. The write survives client disconnects
// (context.WithoutCancel) and its own failure is logged locally, never
// surfaced as the primary error.
func (c *callState) record(ctx context.Context, decision audit.Decision, reason string, latency float32) {
	event := &audit.Event{
		ID:          uuid.New().String(),
		TenantID:    c.tenantID,
		ActorUserID: c.actorUserID,
		ToolKey:     c.req.ToolKey,
		Decision:    decision,
		Reason:      reason,
		RunID:       c.req.RunID,
		RequestID:   c.requestID,
		LatencyMs:   latency,
		Timestamp:   time.Now().UTC(),
	}
	if err := c.dispatcher.audit.Append(context.WithoutCancel(ctx), event); err != nil {
		c.dispatcher.logger.Error("audit append failed",
			zap.String("tenant_id", c.tenantID),
			zap.String("request_id", c.requestID),
			zap.String("decision", string(decision)),
			zap.Error(err),
		)
	}
}

func latencyMs(start time.Time) float32 {
	return float32(float64(time.Since(start)) / float64(time.Millisecond))
}

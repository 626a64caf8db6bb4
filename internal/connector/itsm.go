package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/Gokhanagingil/grc-sub011/internal/provider"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

const maxResponseBytes = 4 << 20

// table paths follow the ServiceNow-style table API exposed by the ITSM
// systems this family covers.
var itsmTablePaths = map[tools.ToolKey]string{
	tools.QueryIncidents: "/api/now/table/incident",
	tools.QueryChanges:   "/api/now/table/change_request",
	tools.QueryProblems:  "/api/now/table/problem",
}

// ITSMConnector queries ITSM table APIs. All operations are GETs.
type ITSMConnector struct {
	client *http.Client
	logger *zap.Logger
}

// NewITSMConnector creates an ITSMConnector. The client is expected to come
// from the SSRF guard so dials are screened.
func NewITSMConnector(client *http.Client, logger *zap.Logger) *ITSMConnector {
	return &ITSMConnector{client: client, logger: logger}
}

func (c *ITSMConnector) Family() tools.ProviderFamily { return tools.FamilyITSM }

func (c *ITSMConnector) Execute(ctx context.Context, req *Request) (json.RawMessage, error) {
	path, ok := itsmTablePaths[req.Tool]
	if !ok {
		return nil, fmt.Errorf("itsm connector: unsupported tool %s", req.Tool)
	}

	u, err := url.Parse(req.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("itsm connector: base url: %w", err)
	}
	u = u.JoinPath(path)
	u.RawQuery = buildQuery(req.Input).Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("itsm connector: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	switch req.AuthMode {
	case provider.AuthBasic:
		httpReq.SetBasicAuth(req.Creds.Username, req.Creds.Password)
	case provider.AuthToken:
		httpReq.Header.Set("Authorization", "Bearer "+req.Creds.Token)
	}
	for k, v := range req.Creds.CustomHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("itsm connector: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("itsm connector: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("itsm query failed",
			zap.String("tenant_id", req.TenantID),
			zap.String("tool", req.Tool.String()),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("itsm connector: upstream status %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("itsm connector: upstream returned non-JSON body")
	}
	return json.RawMessage(body), nil
}

func buildQuery(input map[string]any) url.Values {
	q := url.Values{}
	if s, ok := input["query"].(string); ok && s != "" {
		q.Set("sysparm_query", s)
	}
	if state, ok := input["state"].(string); ok && state != "" {
		existing := q.Get("sysparm_query")
		clause := "state=" + state
		if existing != "" {
			clause = existing + "^" + clause
		}
		q.Set("sysparm_query", clause)
	}
	q.Set("sysparm_limit", strconv.Itoa(intOr(input["limit"], 25)))
	if off := intOr(input["offset"], 0); off > 0 {
		q.Set("sysparm_offset", strconv.Itoa(off))
	}
	return q
}

func intOr(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

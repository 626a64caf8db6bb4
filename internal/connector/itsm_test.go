package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/Gokhanagingil/grc-sub011/internal/provider"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

func TestITSMConnector_Execute(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{"number":"INC0001"}]}`))
	}))
	defer srv.Close()

	c := NewITSMConnector(srv.Client(), zap.NewNop())
	data, err := c.Execute(context.Background(), &Request{
		Tool:     tools.QueryIncidents,
		TenantID: "tenant-1",
		BaseURL:  srv.URL,
		AuthMode: provider.AuthBasic,
		Creds: Credentials{
			Username:      "svc",
			Password:      "hunter2",
			CustomHeaders: map[string]string{"X-Custom": "value"},
		},
		Input: map[string]any{"query": "priority=1", "limit": 5, "offset": 10},
	})
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("connector must return valid JSON: %v", err)
	}

	if gotReq.URL.Path != "/api/now/table/incident" {
		t.Fatalf("unexpected path %s", gotReq.URL.Path)
	}
	q := gotReq.URL.Query()
	if q.Get("sysparm_query") != "priority=1" || q.Get("sysparm_limit") != "5" || q.Get("sysparm_offset") != "10" {
		t.Fatalf("unexpected query: %v", q)
	}
	user, pass, ok := gotReq.BasicAuth()
	if !ok || user != "svc" || pass != "hunter2" {
		t.Fatal("basic auth credentials not forwarded")
	}
	if gotReq.Header.Get("X-Custom") != "value" {
		t.Fatal("custom header not forwarded")
	}
}

func TestITSMConnector_TokenAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	c := NewITSMConnector(srv.Client(), zap.NewNop())
	_, err := c.Execute(context.Background(), &Request{
		Tool:     tools.QueryAlerts,
		BaseURL:  srv.URL,
		AuthMode: provider.AuthToken,
		Creds:    Credentials{Token: "tok-123"},
	})
	if err == nil {
		t.Fatal("alerts belong to the monitoring family and must be rejected here")
	}

	_, err = c.Execute(context.Background(), &Request{
		Tool:     tools.QueryChanges,
		BaseURL:  srv.URL,
		AuthMode: provider.AuthToken,
		Creds:    Credentials{Token: "tok-123"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("unexpected Authorization header %q", gotAuth)
	}
}

func TestITSMConnector_UpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/now/table/problem" {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewITSMConnector(srv.Client(), zap.NewNop())
	if _, err := c.Execute(context.Background(), &Request{
		Tool: tools.QueryProblems, BaseURL: srv.URL, AuthMode: provider.AuthNone,
	}); err == nil {
		t.Fatal("4xx upstream status must surface as an error")
	}
	if _, err := c.Execute(context.Background(), &Request{
		Tool: tools.QueryIncidents, BaseURL: srv.URL, AuthMode: provider.AuthNone,
	}); err == nil {
		t.Fatal("non-JSON upstream body must surface as an error")
	}
}

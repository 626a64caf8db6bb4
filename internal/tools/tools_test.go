package tools

import "testing"

func TestParse(t *testing.T) {
	if _, ok := Parse("QUERY_INCIDENTS"); !ok {
		t.Fatal("expected QUERY_INCIDENTS to parse")
	}
	if _, ok := Parse("NOT_A_REAL_TOOL"); ok {
		t.Fatal("expected unknown key to be rejected")
	}
	if _, ok := Parse("query_incidents"); ok {
		t.Fatal("tool keys are case-sensitive")
	}
}

func TestFamily(t *testing.T) {
	if QueryIncidents.Family() != FamilyITSM {
		t.Fatalf("QUERY_INCIDENTS family = %s", QueryIncidents.Family())
	}
	if QueryAlerts.Family() != FamilyMonitoring {
		t.Fatalf("QUERY_ALERTS family = %s", QueryAlerts.Family())
	}
}

func TestValidateKeys(t *testing.T) {
	keys, invalid := ValidateKeys([]string{"QUERY_INCIDENTS", "QUERY_CHANGES", "QUERY_INCIDENTS"})
	if invalid != nil {
		t.Fatalf("unexpected invalid entries: %v", invalid)
	}
	if len(keys) != 2 {
		t.Fatalf("expected deduplication to 2 keys, got %d", len(keys))
	}

	keys, invalid = ValidateKeys([]string{"QUERY_INCIDENTS", "NOT_A_REAL_TOOL", "ALSO_FAKE"})
	if keys != nil {
		t.Fatal("expected nil keys when any entry is invalid")
	}
	if len(invalid) != 2 {
		t.Fatalf("expected 2 invalid entries, got %v", invalid)
	}
}

func TestValidateInput(t *testing.T) {
	if err := ValidateInput(QueryIncidents, nil); err != nil {
		t.Fatalf("empty input should be valid: %v", err)
	}
	if err := ValidateInput(QueryIncidents, map[string]any{
		"query": "priority=1",
		"limit": 10,
		"state": "new",
	}); err != nil {
		t.Fatalf("well-formed input rejected: %v", err)
	}
	if err := ValidateInput(QueryIncidents, map[string]any{"limit": 0}); err == nil {
		t.Fatal("limit below minimum should be rejected")
	}
	if err := ValidateInput(QueryIncidents, map[string]any{"state": "bogus"}); err == nil {
		t.Fatal("unknown state should be rejected")
	}
	if err := ValidateInput(QueryIncidents, map[string]any{"sysparm_fields": "x"}); err == nil {
		t.Fatal("unknown properties should be rejected")
	}
	if err := ValidateInput(QueryAlerts, map[string]any{"severity": "critical"}); err != nil {
		t.Fatalf("alert severity rejected: %v", err)
	}
}

func TestCatalogEntries(t *testing.T) {
	entries := CatalogEntries()
	if len(entries) != len(All()) {
		t.Fatalf("catalog size %d != enum size %d", len(entries), len(All()))
	}
	for _, e := range entries {
		if !e.ReadOnly {
			t.Fatalf("tool %s must be read-only in v1", e.Key)
		}
	}
}

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func TestResultConstructors(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   Status
	}{
		{"healthy", Healthy("ok"), StatusHealthy},
		{"degraded", Degraded("slow"), StatusDegraded},
		{"unhealthy", Unhealthy("down"), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Status != tt.want {
				t.Errorf("Status = %v, want %v", tt.result.Status, tt.want)
			}
			if tt.result.Details == nil {
				t.Error("Details should be initialized")
			}
		})
	}
}

func TestResultJSON(t *testing.T) {
	r := Healthy("model gpt-4.1-mini configured").WithDetail("model", "gpt-4.1-mini")

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", got["status"])
	}
	details, _ := got["details"].(map[string]interface{})
	if details["model"] != "gpt-4.1-mini" {
		t.Errorf("details.model = %v", details["model"])
	}
}

func TestOpenAIChecker(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		want   Status
	}{
		{"key configured", "sk-test", StatusHealthy},
		{"key missing", "", StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAIChecker(tt.apiKey, "gpt-4.1-mini")
			if c.Name() != "openai" {
				t.Errorf("Name() = %q", c.Name())
			}
			if got := c.Check(context.Background()).Status; got != tt.want {
				t.Errorf("Status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPingChecker(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	fail := func(ctx context.Context) error { return fmt.Errorf("connection refused") }

	tests := []struct {
		name     string
		ping     PingFunc
		optional bool
		want     Status
	}{
		{"reachable", ok, false, StatusHealthy},
		{"unreachable", fail, false, StatusUnhealthy},
		{"optional unreachable", fail, true, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPingChecker("analysis-service", "http://localhost:8000", tt.ping)
			if tt.optional {
				c = c.Optional()
			}

			r := c.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v", r.Status, tt.want)
			}
			if r.Details["target"] != "http://localhost:8000" {
				t.Errorf("target detail = %v", r.Details["target"])
			}
			if tt.want != StatusHealthy && r.Details["error"] != "connection refused" {
				t.Errorf("error detail = %v", r.Details["error"])
			}
		})
	}
}

func TestOptional(t *testing.T) {
	c := Optional(NewOpenAIChecker("", "gpt-4.1-mini"))

	if c.Name() != "openai" {
		t.Errorf("Name() = %q", c.Name())
	}
	if got := c.Check(context.Background()).Status; got != StatusDegraded {
		t.Errorf("Status = %v, want %v", got, StatusDegraded)
	}
	if got := Optional(NewOpenAIChecker("sk-test", "m")).Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("Status = %v, want %v", got, StatusHealthy)
	}
}

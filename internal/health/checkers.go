package health

import (
	"context"
	"fmt"
)

// OpenAIChecker reports whether the analysis service can reach a model.
// It only inspects configuration so readiness probes cost nothing.
type OpenAIChecker struct {
	apiKey string
	model  string
}

// NewOpenAIChecker creates the "openai" checker.
func NewOpenAIChecker(apiKey, model string) *OpenAIChecker {
	return &OpenAIChecker{apiKey: apiKey, model: model}
}

func (c *OpenAIChecker) Name() string {
	return "openai"
}

func (c *OpenAIChecker) Check(ctx context.Context) *Result {
	if c.apiKey == "" {
		return Unhealthy("OPENAI_API_KEY is not set").
			WithDetail("suggestion", "Export OPENAI_API_KEY before running macrocam serve")
	}
	return Healthy(fmt.Sprintf("model %s configured", c.model)).
		WithDetail("model", c.model)
}

// PingFunc reports a dependency failure as an error.
type PingFunc func(ctx context.Context) error

// PingChecker turns a PingFunc into a Checker. A failing ping is unhealthy,
// or degraded when the dependency is optional.
type PingChecker struct {
	name     string
	target   string
	ping     PingFunc
	optional bool
}

// NewPingChecker creates a required dependency check.
func NewPingChecker(name, target string, ping PingFunc) *PingChecker {
	return &PingChecker{name: name, target: target, ping: ping}
}

// Optional marks the dependency as optional.
func (c *PingChecker) Optional() *PingChecker {
	c.optional = true
	return c
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) *Result {
	if err := c.ping(ctx); err != nil {
		r := Unhealthy(fmt.Sprintf("%s unreachable", c.target))
		if c.optional {
			r = Degraded(fmt.Sprintf("%s unreachable", c.target))
		}
		return r.WithDetail("target", c.target).WithDetail("error", err.Error())
	}
	return Healthy(fmt.Sprintf("%s reachable", c.target)).WithDetail("target", c.target)
}

type optionalChecker struct {
	Checker
}

// Optional reports c's unhealthy results as degraded.
func Optional(c Checker) Checker {
	return optionalChecker{c}
}

func (c optionalChecker) Check(ctx context.Context) *Result {
	r := c.Checker.Check(ctx)
	if r != nil && r.Status == StatusUnhealthy {
		r.Status = StatusDegraded
	}
	return r
}

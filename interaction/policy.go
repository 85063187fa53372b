package interaction

import (
	"context"
	"fmt"

	"github.com/oidcd/oidcd"
	"github.com/oidcd/oidcd/instrumentation"
)

// CheckFunc reports whether the check fires for the given context.
type CheckFunc func(ctx context.Context, ic *Context) (bool, error)

// DetailsFunc produces the machine-readable details attached to a
// fired check.
type DetailsFunc func(ic *Context) map[string]any

// Check is one rule within a prompt.
type Check struct {
	// Name identifies the check within its prompt.
	Name string

	// Description explains the check in human terms.
	Description string

	// Error is the protocol error code the request is rejected with
	// when the check fires and the prompt cannot be served.
	Error string

	// Details optionally describes what exactly is missing.
	Details DetailsFunc

	// Run evaluates the check.
	Run CheckFunc
}

// Prompt is an ordered list of checks under one name.
type Prompt struct {
	name        string
	requestable bool
	checks      []*Check
}

// NewPrompt creates a prompt. A requestable prompt leads with a
// synthetic "{name}_prompt" check that fires whenever the request asked
// for the prompt explicitly. Checks without an explicit error code
// inherit the prompt's default. The name "none" is reserved by the
// protocol and rejected.
func NewPrompt(name string, requestable bool, checks ...*Check) (*Prompt, error) {
	if name == "none" {
		return nil, oidcd.NewConfigError("prompt name none is reserved")
	}
	p := &Prompt{name: name, requestable: requestable}
	if requestable {
		p.checks = append(p.checks, requestedCheck(name))
	}
	for _, c := range checks {
		p.AddCheck(c)
	}
	return p, nil
}

func requestedCheck(name string) *Check {
	return &Check{
		Name:        name + "_prompt",
		Description: name + " prompt was not resolved",
		Error:       promptError(name),
		Run: func(_ context.Context, ic *Context) (bool, error) {
			return ic.PromptRequested(name), nil
		},
	}
}

func promptError(name string) string {
	switch name {
	case "login":
		return oidcd.ErrorCodeLoginRequired
	case "consent":
		return oidcd.ErrorCodeConsentRequired
	case "select_account":
		return oidcd.ErrorCodeAccountSelectionRequired
	default:
		return oidcd.ErrorCodeInteractionRequired
	}
}

// Name returns the prompt's name.
func (p *Prompt) Name() string { return p.name }

// Requestable reports whether clients may request the prompt by name.
func (p *Prompt) Requestable() bool { return p.requestable }

// Checks returns the prompt's checks in evaluation order.
func (p *Prompt) Checks() []*Check { return p.checks }

// AddCheck appends a check. An empty error code defaults to the
// prompt's.
func (p *Prompt) AddCheck(c *Check) {
	if c.Error == "" {
		c.Error = promptError(p.name)
	}
	p.checks = append(p.checks, c)
}

// AddCheckAt inserts a check at index, appending when the index is out
// of range.
func (p *Prompt) AddCheckAt(c *Check, index int) {
	if c.Error == "" {
		c.Error = promptError(p.name)
	}
	if index < 0 || index >= len(p.checks) {
		p.checks = append(p.checks, c)
		return
	}
	p.checks = append(p.checks[:index], append([]*Check{c}, p.checks[index:]...)...)
}

// ClearChecks removes all checks, the synthetic requested-prompt check
// included.
func (p *Prompt) ClearChecks() {
	p.checks = nil
}

// RemoveCheck removes the named check.
func (p *Prompt) RemoveCheck(name string) {
	for i, c := range p.checks {
		if c.Name == name {
			p.checks = append(p.checks[:i], p.checks[i+1:]...)
			return
		}
	}
}

// GetCheck returns the named check, or nil.
func (p *Prompt) GetCheck(name string) *Check {
	for _, c := range p.checks {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Policy is the ordered list of prompts an authorization request is
// evaluated against.
type Policy struct {
	prompts []*Prompt
	metrics *instrumentation.Metrics
}

// Instrument records a counter per pending prompt on every evaluation.
func (p *Policy) Instrument(inst *instrumentation.Instrumentation) {
	if inst != nil {
		p.metrics = inst.Metrics()
	}
}

// Get returns the named prompt, or nil.
func (p *Policy) Get(name string) *Prompt {
	for _, prompt := range p.prompts {
		if prompt.name == name {
			return prompt
		}
	}
	return nil
}

// Add appends a prompt.
func (p *Policy) Add(prompt *Prompt) {
	p.prompts = append(p.prompts, prompt)
}

// AddAt inserts a prompt at index.
func (p *Policy) AddAt(prompt *Prompt, index int) {
	if index < 0 || index >= len(p.prompts) {
		p.Add(prompt)
		return
	}
	p.prompts = append(p.prompts[:index], append([]*Prompt{prompt}, p.prompts[index:]...)...)
}

// Remove removes the named prompt.
func (p *Policy) Remove(name string) {
	for i, prompt := range p.prompts {
		if prompt.name == name {
			p.prompts = append(p.prompts[:i], p.prompts[i+1:]...)
			return
		}
	}
}

// Clear removes all prompts.
func (p *Policy) Clear() {
	p.prompts = nil
}

// Prompts returns the prompts in evaluation order.
func (p *Policy) Prompts() []*Prompt { return p.prompts }

// Result describes the first check that fired during evaluation.
type Result struct {
	// Prompt is the prompt that must be served.
	Prompt string

	// Check names the rule that fired.
	Check string

	// Details carries the check's machine-readable specifics, such as
	// the missing scopes.
	Details map[string]any

	// Error is the protocol error code for deployments that cannot
	// serve the prompt, e.g. because prompt=none was requested.
	Error string

	// Pending lists every prompt with a fired check, in policy order.
	// The first is this result's prompt; the rest become relevant once
	// it has been served.
	Pending []string
}

// Err converts the result into the protocol error raised when the
// prompt cannot be served.
func (r *Result) Err() *oidcd.Error {
	e := oidcd.NewError(r.Error, "")
	if len(r.Details) > 0 {
		e.WithDetail(r.Details)
	}
	return e
}

// Evaluate runs every prompt, short-circuiting each on its first fired
// check, and returns the first pending prompt together with the full
// pending list. Nil when no interaction is needed.
func (p *Policy) Evaluate(ctx context.Context, ic *Context) (*Result, error) {
	var result *Result
	for _, prompt := range p.prompts {
		for _, check := range prompt.checks {
			fired, err := check.Run(ctx, ic)
			if err != nil {
				return nil, fmt.Errorf("interaction: check %s/%s: %w", prompt.name, check.Name, err)
			}
			if !fired {
				continue
			}
			if result == nil {
				result = &Result{
					Prompt: prompt.name,
					Check:  check.Name,
					Error:  check.Error,
				}
				if check.Details != nil {
					result.Details = check.Details(ic)
				}
			}
			result.Pending = append(result.Pending, prompt.name)
			break
		}
	}
	if result != nil && p.metrics != nil {
		for _, name := range result.Pending {
			p.metrics.RecordPromptRequired(ctx, name)
		}
	}
	return result, nil
}

// DefaultPolicy returns the login and consent prompts with their
// standard checks.
func DefaultPolicy() *Policy {
	policy := &Policy{}
	login, err := loginPrompt()
	if err != nil {
		panic(err)
	}
	consent, err := consentPrompt()
	if err != nil {
		panic(err)
	}
	policy.Add(login)
	policy.Add(consent)
	return policy
}

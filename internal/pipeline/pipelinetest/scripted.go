// Package pipelinetest provides a scripted generator and canned responses for
// exercising the pipeline without a generative service.
package pipelinetest

import (
	"context"
	"fmt"
	"sync"

	"planforge/internal/providers/llm"
)

// Scripted answers each request with the response registered for its task.
type Scripted struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	calls     []llm.Request
}

func NewScripted() *Scripted {
	return &Scripted{responses: map[string]string{}, failures: map[string]error{}}
}

// Respond registers the reply for task.
func (s *Scripted) Respond(task, text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[task] = text
	return s
}

// Fail makes every request for task return err.
func (s *Scripted) Fail(task string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[task] = err
	return s
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Generate(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	text, ok := s.responses[req.Task]
	failure := s.failures[req.Task]
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if failure != nil {
		return "", failure
	}
	if !ok {
		return "", fmt.Errorf("scripted: no response for task %q", req.Task)
	}
	return text, nil
}

// Calls returns the requests received so far.
func (s *Scripted) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// Tasks returns the task names of the requests received so far.
func (s *Scripted) Tasks() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Task
	}
	return out
}

// Coffee returns a generator scripted with a full, slightly malformed run for
// the artisanal coffee subscription example.
func Coffee() *Scripted {
	return NewScripted().
		Respond("synthesis", "```json\n"+coffeeDraft+"\n```").
		Respond("proofread", coffeeProofread).
		Respond("finalize", coffeeFinal)
}

var coffeeDraft = `{
  "overview": "Launch a subscription box of small-farm coffee beans.",
  "weeks": [
    {"title": "Foundation", "goal": "Define the offer", "tasks": [
      {"day": 1, "description": "Write the subscription offer", "duration": "2 hours", "tools": ["Notion"], "metric": "Offer page drafted"},
      {"day": 2, "description": "Publish a LinkedIn post about the founding story", "duration": "1 hour", "tool": "LinkedIn", "metric": "Post live"}
    ]},
    {"title": "Validation", "goal": "Test demand", "tasks": [
      {"day": 9, "task": "Share a thread on sourcing from small farms", "time": "1 hour", "tool": "X", "kpi": "50 replies"}
    ]},
    {"title": "Growth", "goal": "Grow the list", "tasks": [
      {"day": 15, "task": "Partner with two local cafes", "time": "3 hours", "tool": "Email", "kpi": "2 partners"}
    ]},
    {"title": "Monetization", "goal": "First paying subscribers", "tasks": [
      {"day": 22, "task": "Open pre-orders", "time": "2 hours", "tool": "Gumroad", "kpi": "10 pre-orders"}
    ]}
  ],
  "tools": ["Notion", "Gumroad"],
  "kpis": ["Subscribers"]
}`

var coffeeProofread = `{
  "cleanedPlan": ` + coffeeDraft + `,
  "socialPosts": [
    {"day": 2, "channel": "LinkedIn", "title": "Why small farms", "body": "Hook. Context. Tension. Reveal."},
    {"day": "Day 9", "platform": "twitter", "segments": ["1/ We met a farmer", "2/ Prices were unfair", "3/ So we built this"]},
    {"day": 31, "channel": "blog", "body": "An orphan with no matching day"}
  ]
}`

// coffeeFinal leaves the first task of every week without a time estimate,
// so the reconciler fills it from the business time commitment.
var coffeeFinal = `{
  "plan": {
    "overview": "Launch a subscription box of small-farm coffee beans. Reach 25 paying subscribers within 30 days.",
    "weeklyPlan": [
      {"title": "Foundation", "goal": "Define the offer", "dailyTasks": [
        {"day": "D1", "task": "Write the subscription offer", "tool": "Notion", "kpi": "Offer page drafted"},
        {"day": "D2", "task": "Publish a LinkedIn post about the founding story", "timeEstimate": "1 hour", "tool": "LinkedIn", "kpi": "Post live"}
      ]},
      {"title": "Validation", "goal": "Test demand", "dailyTasks": [
        {"day": "D9", "task": "Share a thread on sourcing from small farms", "tool": "X", "kpi": "50 replies"}
      ]},
      {"title": "Growth", "goal": "Grow the list", "dailyTasks": [
        {"day": "D15", "task": "Partner with two local cafes", "tool": "Email", "kpi": "2 partners"}
      ]},
      {"title": "Monetization", "goal": "First paying subscribers", "dailyTasks": [
        {"day": "D22", "task": "Open pre-orders", "tool": "Gumroad", "kpi": "10 pre-orders"}
      ]}
    ],
    "recommendedTools": [
      {"name": "Notion", "purpose": "Planning", "cost": "Free"},
      {"name": "Gumroad", "purpose": "Pre-orders", "cost": "Free + fees"}
    ],
    "kpis": ["Paying subscribers", "Email list size"],
    "nextSteps": ["Review churn", "Plan month two"]
  },
  "unmetChecklist": []
}`

package domain

import (
	"encoding/json"
	"time"
)

// Post channels recognized in a PostDraft.
const (
	ChannelLongForm = "long_form"
	ChannelThread   = "thread"
)

// MaxNextSteps caps the follow-up actions kept on a plan.
const MaxNextSteps = 3

// FinalPlan is the strictly shaped 30-day plan. Every slice is non-nil once
// the plan has been through the reconciler.
type FinalPlan struct {
	Overview         string               `json:"overview"`
	WeeklyPlan       []Week               `json:"weeklyPlan"`
	RecommendedTools []ToolRecommendation `json:"recommendedTools"`
	KPIs             []string             `json:"kpis"`
	NextSteps        []string             `json:"nextSteps,omitempty"`
}

// Week is one block of the plan.
type Week struct {
	Title      string      `json:"title"`
	Goal       string      `json:"goal"`
	DailyTasks []DailyTask `json:"dailyTasks"`
}

// DailyTask is a single day of work.
type DailyTask struct {
	Day          string     `json:"day"`
	Task         string     `json:"task"`
	TimeEstimate string     `json:"timeEstimate"`
	Tool         string     `json:"tool"`
	KPI          string     `json:"kpi"`
	SocialPost   *PostDraft `json:"socialPost,omitempty"`
}

// ToolRecommendation names a tool the plan relies on.
type ToolRecommendation struct {
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
	Cost    string `json:"cost"`
}

// PostDraft is a generated social post for one day of the plan. Long-form
// drafts use Title and Body; thread drafts use Segments.
type PostDraft struct {
	Day      string   `json:"day"`
	Channel  string   `json:"channel"`
	Title    string   `json:"title,omitempty"`
	Body     string   `json:"body,omitempty"`
	Segments []string `json:"segments,omitempty"`
}

// TaskCount returns the number of daily tasks across all weeks.
func (p FinalPlan) TaskCount() int {
	n := 0
	for _, w := range p.WeeklyPlan {
		n += len(w.DailyTasks)
	}
	return n
}

// PersistedPlan is a FinalPlan together with its storage metadata.
type PersistedPlan struct {
	ID            string          `json:"id"`
	BusinessInfo  json.RawMessage `json:"businessInfo"`
	GeneratedPlan FinalPlan       `json:"generatedPlan"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	ShareToken    *string         `json:"shareToken,omitempty"`
	Editable      bool            `json:"editable"`
}

// NextUpdatedAt returns the timestamp an edit must record so that updatedAt
// strictly advances even when the clock has not moved.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	floor := prev.UTC().Add(time.Microsecond)
	if now.Before(floor) {
		return floor
	}
	return now
}

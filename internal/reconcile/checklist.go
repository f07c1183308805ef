package reconcile

import (
	"fmt"
	"regexp"
	"strings"

	"planforge/internal/domain"
)

const (
	CheckMeasurableOutcome = "overview_measurable_outcome"
	CheckTaskFields        = "task_fields_complete"
	CheckSocialDrafts      = "social_drafts_present"
	CheckTimeCommitment    = "weeks_reference_time_commitment"
)

type ChecklistItem struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

type Checklist struct {
	Items []ChecklistItem `json:"items"`
}

// Unmet lists the names of failing items.
func (c Checklist) Unmet() []string {
	var out []string
	for _, it := range c.Items {
		if !it.Passed {
			out = append(out, it.Name)
		}
	}
	return out
}

var (
	digitPattern   = regexp.MustCompile(`\d`)
	contentPattern = regexp.MustCompile(`(?i)\b(post|publish|share|tweet|thread|linkedin|blog|article|newsletter|announce|content)\b`)
	sentenceSplit  = regexp.MustCompile(`[.!?]+\s+`)
)

// Check computes the fixed launch-plan checklist. filled is the number of
// task fields that received a default during reconciliation. commitment is
// the founder's weekly time budget; every week should mention it in at least
// one task. An empty commitment passes that item.
func Check(plan domain.FinalPlan, filled int, commitment string) Checklist {
	var list Checklist

	outcome := lastSentence(plan.Overview)
	list.Items = append(list.Items, ChecklistItem{
		Name:   CheckMeasurableOutcome,
		Passed: digitPattern.MatchString(outcome),
		Detail: outcome,
	})

	fields := ChecklistItem{Name: CheckTaskFields, Passed: filled == 0}
	if filled > 0 {
		fields.Detail = fmt.Sprintf("%d task fields filled with defaults", filled)
	}
	list.Items = append(list.Items, fields)

	var missing []string
	for _, w := range plan.WeeklyPlan {
		for _, t := range w.DailyTasks {
			if t.SocialPost == nil && ReferencesContent(t.Task) {
				missing = append(missing, t.Day)
			}
		}
	}
	drafts := ChecklistItem{Name: CheckSocialDrafts, Passed: len(missing) == 0}
	if len(missing) > 0 {
		drafts.Detail = "missing drafts for " + strings.Join(missing, ", ")
	}
	list.Items = append(list.Items, drafts)

	var unreferenced []string
	for _, w := range plan.WeeklyPlan {
		if !ReferencesCommitment(w, commitment) {
			unreferenced = append(unreferenced, w.Title)
		}
	}
	budget := ChecklistItem{Name: CheckTimeCommitment, Passed: len(unreferenced) == 0}
	if len(unreferenced) > 0 {
		budget.Detail = "no task mentions " + commitment + " in " + strings.Join(unreferenced, ", ")
	}
	list.Items = append(list.Items, budget)
	return list
}

// ReferencesCommitment reports whether any task of w mentions commitment in
// its time estimate or description, ignoring case and spacing.
func ReferencesCommitment(w domain.Week, commitment string) bool {
	want := squash(commitment)
	if want == "" {
		return true
	}
	for _, t := range w.DailyTasks {
		if strings.Contains(squash(t.TimeEstimate), want) || strings.Contains(squash(t.Task), want) {
			return true
		}
	}
	return false
}

func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

// ReferencesContent reports whether a task describes creating outward-facing
// content.
func ReferencesContent(task string) bool {
	return contentPattern.MatchString(task)
}

func lastSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	parts := sentenceSplit.Split(text, -1)
	for i := len(parts) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(parts[i]); s != "" {
			return s
		}
	}
	return text
}

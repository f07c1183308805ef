package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	// MinBusinessIdeaLength is the shortest accepted idea description, in characters.
	MinBusinessIdeaLength = 10
	// MaxBusinessIdeaLength caps the idea text forwarded to the generative service.
	MaxBusinessIdeaLength = 6000
	// DefaultTimeCommitment is applied when the request omits the time commitment.
	DefaultTimeCommitment = "5-10 hours/week"
	// DefaultBudget is applied when the request omits the budget.
	DefaultBudget = "$0 (Zero-budget)"
	// DefaultLocale is the output language when none is requested.
	DefaultLocale = "en"
)

// BusinessInfo is the per-request description that seeds a plan.
type BusinessInfo struct {
	BusinessIdea      string `json:"businessIdea"`
	Industry          string `json:"industry"`
	TargetMarket      string `json:"targetMarket"`
	TimeCommitment    string `json:"timeCommitment"`
	Budget            string `json:"budget"`
	AdditionalContext string `json:"additionalContext,omitempty"`
	Locale            string `json:"locale,omitempty"`
}

// Normalize trims every field and applies server defaults.
func (b *BusinessInfo) Normalize(preferredLocale string) {
	if b == nil {
		return
	}
	b.BusinessIdea = strings.TrimSpace(b.BusinessIdea)
	b.Industry = strings.TrimSpace(b.Industry)
	b.TargetMarket = strings.TrimSpace(b.TargetMarket)
	b.TimeCommitment = strings.TrimSpace(b.TimeCommitment)
	b.Budget = strings.TrimSpace(b.Budget)
	b.AdditionalContext = strings.TrimSpace(b.AdditionalContext)
	b.Locale = strings.ToLower(strings.TrimSpace(b.Locale))
	if b.TimeCommitment == "" {
		b.TimeCommitment = DefaultTimeCommitment
	}
	if b.Budget == "" {
		b.Budget = DefaultBudget
	}
	if b.Locale == "" {
		if preferredLocale != "" {
			b.Locale = preferredLocale
		} else {
			b.Locale = DefaultLocale
		}
	}
}

// Validate reports every field that breaks the BusinessInfo invariants.
func (b BusinessInfo) Validate() error {
	verr := &ValidationError{}
	idea := strings.TrimSpace(b.BusinessIdea)
	switch n := utf8.RuneCountInString(idea); {
	case n == 0:
		verr.Add("businessIdea", "is required")
	case n < MinBusinessIdeaLength:
		verr.Add("businessIdea", "must be at least 10 characters")
	case n > MaxBusinessIdeaLength:
		verr.Add("businessIdea", "must be at most 6000 characters")
	}
	if strings.TrimSpace(b.Industry) == "" {
		verr.Add("industry", "is required")
	}
	if strings.TrimSpace(b.TargetMarket) == "" {
		verr.Add("targetMarket", "is required")
	}
	return verr.OrNil()
}

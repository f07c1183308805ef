package repo

import (
	"errors"

	"github.com/google/uuid"

	"planforge/internal/domain"
)

// validID reports whether id can name a stored plan. Malformed ids are
// reported as not found rather than as storage errors.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func clonePlan(p *domain.PersistedPlan) *domain.PersistedPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.BusinessInfo = append([]byte(nil), p.BusinessInfo...)
	if p.ShareToken != nil {
		token := *p.ShareToken
		out.ShareToken = &token
	}
	out.GeneratedPlan = cloneFinalPlan(p.GeneratedPlan)
	return &out
}

func cloneFinalPlan(p domain.FinalPlan) domain.FinalPlan {
	out := p
	out.WeeklyPlan = make([]domain.Week, len(p.WeeklyPlan))
	for i, w := range p.WeeklyPlan {
		nw := w
		nw.DailyTasks = make([]domain.DailyTask, len(w.DailyTasks))
		for j, t := range w.DailyTasks {
			nt := t
			if t.SocialPost != nil {
				post := *t.SocialPost
				post.Segments = append([]string(nil), t.SocialPost.Segments...)
				nt.SocialPost = &post
			}
			nw.DailyTasks[j] = nt
		}
		out.WeeklyPlan[i] = nw
	}
	out.RecommendedTools = append([]domain.ToolRecommendation{}, p.RecommendedTools...)
	out.KPIs = append([]string{}, p.KPIs...)
	if p.NextSteps != nil {
		out.NextSteps = append([]string(nil), p.NextSteps...)
	}
	return out
}

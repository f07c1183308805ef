package reconcile

import (
	"errors"
	"reflect"
	"testing"

	"planforge/internal/domain"
)

func mustDecode(t *testing.T, raw string) map[string]any {
	t.Helper()
	doc, err := decodeObject([]byte(raw))
	if err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return doc
}

func TestReconcileMapsAliasedFields(t *testing.T) {
	doc := mustDecode(t, `{
		"summary": "Launch a coffee box. Reach 50 paying subscribers in 30 days.",
		"weeks": [{
			"theme": "Foundation",
			"objective": "Set up the basics",
			"tasks": [
				{"day": 1, "description": "Write the offer", "duration": "2 hours", "tools": ["Notion", "Canva"], "metric": "Offer drafted"},
				{"day_number": "Day 2", "task": "Build landing page", "time": "3 hours", "tool": "Carrd", "kpi": "Page live"}
			]
		}],
		"tool_recommendations": [{"tool": "Carrd", "description": "Landing page", "price": "$19/yr"}, "Canva", "canva"],
		"key_metrics": [{"metric": "Subscribers", "target": "50"}, "Email list size"],
		"next_steps": ["a", "b", "c", "d"]
	}`)
	res, err := New(Defaults{}, OrphanDrop).Reconcile(doc, nil)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	plan := res.Plan
	if plan.Overview == "" {
		t.Fatalf("overview not mapped")
	}
	if len(plan.WeeklyPlan) != 1 || plan.WeeklyPlan[0].Title != "Foundation" || plan.WeeklyPlan[0].Goal != "Set up the basics" {
		t.Fatalf("week = %+v", plan.WeeklyPlan)
	}
	tasks := plan.WeeklyPlan[0].DailyTasks
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}
	want := domain.DailyTask{Day: "D1", Task: "Write the offer", TimeEstimate: "2 hours", Tool: "Notion, Canva", KPI: "Offer drafted"}
	if !reflect.DeepEqual(tasks[0], want) {
		t.Fatalf("task[0] = %+v, want %+v", tasks[0], want)
	}
	if tasks[1].Day != "D2" || tasks[1].Tool != "Carrd" {
		t.Fatalf("task[1] = %+v", tasks[1])
	}
	if len(plan.RecommendedTools) != 2 {
		t.Fatalf("tools = %+v, want 2 deduplicated entries", plan.RecommendedTools)
	}
	if plan.RecommendedTools[0] != (domain.ToolRecommendation{Name: "Carrd", Purpose: "Landing page", Cost: "$19/yr"}) {
		t.Fatalf("tool[0] = %+v", plan.RecommendedTools[0])
	}
	if !reflect.DeepEqual(plan.KPIs, []string{"Subscribers: 50", "Email list size"}) {
		t.Fatalf("kpis = %v", plan.KPIs)
	}
	if len(plan.NextSteps) != domain.MaxNextSteps {
		t.Fatalf("next steps = %v, want %d", plan.NextSteps, domain.MaxNextSteps)
	}
	if res.FilledFields != 0 {
		t.Fatalf("FilledFields = %d, want 0", res.FilledFields)
	}
}

func TestReconcileFillsDefaultsAndEmptyCollections(t *testing.T) {
	doc := mustDecode(t, `{"plan": {"weeklyPlan": [{"dailyTasks": [{"task": "Interview five customers"}, "Post a teaser"]}]}}`)
	res, err := New(Defaults{TimeEstimate: "10 hours/week"}, OrphanDrop).Reconcile(doc, nil)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	plan := res.Plan
	if plan.WeeklyPlan[0].Title != "Week 1" {
		t.Fatalf("title = %q, want Week 1", plan.WeeklyPlan[0].Title)
	}
	for _, task := range plan.WeeklyPlan[0].DailyTasks {
		if task.Day == "" || task.TimeEstimate != "10 hours/week" || task.Tool == "" || task.KPI == "" {
			t.Fatalf("task not filled: %+v", task)
		}
	}
	if plan.WeeklyPlan[0].DailyTasks[1].Day != "D2" {
		t.Fatalf("positional day = %q, want D2", plan.WeeklyPlan[0].DailyTasks[1].Day)
	}
	if plan.RecommendedTools == nil || plan.KPIs == nil {
		t.Fatalf("required collections must be non-nil")
	}
	if plan.NextSteps != nil {
		t.Fatalf("next steps = %v, want nil", plan.NextSteps)
	}
	if res.FilledFields != 8 {
		t.Fatalf("FilledFields = %d, want 8", res.FilledFields)
	}
}

func TestReconcileMergesPostsByDay(t *testing.T) {
	doc := mustDecode(t, `{"weeklyPlan": [
		{"title": "Foundation", "dailyTasks": [{"day": "D1", "task": "Set up"}]},
		{"title": "Validation", "dailyTasks": [{"day": "Day 9", "task": "Publish a LinkedIn post"}]}
	]}`)
	posts := ParsePosts([]any{
		map[string]any{"day": "9", "platform": "LinkedIn", "title": "Why we started", "body": "Hook..."},
	})
	res, err := New(Defaults{}, OrphanDrop).Reconcile(doc, posts)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	got := res.Plan.WeeklyPlan[1].DailyTasks[0].SocialPost
	if got == nil {
		t.Fatalf("post not merged onto D9")
	}
	if got.Day != "D9" || got.Channel != domain.ChannelLongForm || got.Title != "Why we started" {
		t.Fatalf("post = %+v", got)
	}
	if res.Plan.WeeklyPlan[0].DailyTasks[0].SocialPost != nil {
		t.Fatalf("D1 must not receive a post")
	}
}

func TestReconcileOrphanPolicies(t *testing.T) {
	raw := `{"weeklyPlan": [{"title": "Foundation", "dailyTasks": [{"day": 1, "task": "Set up"}]}]}`
	orphan := []domain.PostDraft{{Day: "D12", Channel: domain.ChannelThread, Segments: []string{"1/"}}}

	tests := []struct {
		name      string
		policy    OrphanPolicy
		wantErr   bool
		wantKept  int
		wantCount int
	}{
		{name: "drop", policy: OrphanDrop, wantCount: 1},
		{name: "report", policy: OrphanReport, wantKept: 1, wantCount: 1},
		{name: "reject", policy: OrphanReject, wantErr: true, wantCount: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(Defaults{}, tt.policy).Reconcile(mustDecode(t, raw), orphan)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrSchemaValidation) || !errors.Is(err, ErrOrphanPost) {
					t.Fatalf("err = %v, want schema validation orphan error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reconcile returned error: %v", err)
			}
			if len(res.Orphans) != tt.wantKept {
				t.Fatalf("orphans = %v, want %d", res.Orphans, tt.wantKept)
			}
			if res.OrphanCount != tt.wantCount {
				t.Fatalf("OrphanCount = %d, want %d", res.OrphanCount, tt.wantCount)
			}
			for _, task := range res.Plan.WeeklyPlan[0].DailyTasks {
				if task.SocialPost != nil {
					t.Fatalf("orphan attached to %s", task.Day)
				}
			}
		})
	}
}

func TestReconcileRejectsEmptyPlans(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no weekly plan", raw: `{"overview": "x"}`},
		{name: "empty weeks", raw: `{"weeklyPlan": []}`},
		{name: "weeks without tasks", raw: `{"weeklyPlan": [{"title": "Foundation", "dailyTasks": []}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Defaults{}, OrphanDrop).Reconcile(mustDecode(t, tt.raw), nil)
			if !errors.Is(err, domain.ErrSchemaValidation) {
				t.Fatalf("err = %v, want ErrSchemaValidation", err)
			}
			if domain.KindOf(err) != domain.KindSchemaValidation {
				t.Fatalf("kind = %q", domain.KindOf(err))
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	doc := mustDecode(t, `{
		"overview": "Grow to 20 customers in 30 days.",
		"weeks": [{"name": "growth", "tasks": [
			{"day": "d03", "action": "Write a thread", "tools": ["X"], "socialPost": {"platform": "twitter", "tweets": [{"text": "1/"}, "2/"]}},
			{"task": "Call leads"}
		]}],
		"kpis": "Customers"
	}`)
	r := New(Defaults{}, OrphanDrop)
	first, err := r.Reconcile(doc, nil)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	once, err := r.Normalize(first.Plan)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	twice, err := r.Normalize(once)
	if err != nil {
		t.Fatalf("second Normalize returned error: %v", err)
	}
	if !reflect.DeepEqual(first.Plan, once) || !reflect.DeepEqual(once, twice) {
		t.Fatalf("normalize not idempotent:\nfirst=%+v\nonce=%+v\ntwice=%+v", first.Plan, once, twice)
	}
	post := once.WeeklyPlan[0].DailyTasks[0].SocialPost
	if post == nil || post.Channel != domain.ChannelThread || post.Day != "D3" || len(post.Segments) != 2 {
		t.Fatalf("embedded post = %+v", post)
	}
}

func TestDayLabel(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: "D9", want: "D9"},
		{in: "Day 9", want: "D9"},
		{in: "day-09", want: "D9"},
		{in: "Week 2, Day 3", want: "D3"},
		{in: "12", want: "D12"},
		{in: 4.0, want: "D4"},
		{in: 0, want: ""},
		{in: "Monday", want: ""},
		{in: nil, want: ""},
	}
	for _, tt := range tests {
		if got := dayLabel(tt.in); got != tt.want {
			t.Fatalf("dayLabel(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChannelOf(t *testing.T) {
	if got := channelOf("X-Thread", false); got != domain.ChannelThread {
		t.Fatalf("X-Thread = %q", got)
	}
	if got := channelOf("Long-Form", false); got != domain.ChannelLongForm {
		t.Fatalf("Long-Form = %q", got)
	}
	if got := channelOf("mastodon", true); got != domain.ChannelThread {
		t.Fatalf("unknown with segments = %q", got)
	}
}

func TestParseOrphanPolicy(t *testing.T) {
	if ParseOrphanPolicy(" REPORT ") != OrphanReport {
		t.Fatalf("report not parsed")
	}
	if ParseOrphanPolicy("bogus") != OrphanDrop {
		t.Fatalf("unknown policy must fall back to drop")
	}
}

// Package reconcile turns loosely shaped model output into a strict
// domain.FinalPlan. Field names are matched through a declared alias table,
// values are coerced to their canonical form and post drafts are merged onto
// the daily task whose day they reference.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"planforge/internal/domain"
)

// OrphanPolicy decides what happens to a post draft whose day matches no task.
type OrphanPolicy string

const (
	OrphanDrop   OrphanPolicy = "drop"
	OrphanReport OrphanPolicy = "report"
	OrphanReject OrphanPolicy = "reject"
)

var ErrOrphanPost = errors.New("post draft references a day with no task")

// ParseOrphanPolicy maps a config value to a policy; unknown values yield drop.
func ParseOrphanPolicy(v string) OrphanPolicy {
	switch OrphanPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case OrphanReport:
		return OrphanReport
	case OrphanReject:
		return OrphanReject
	default:
		return OrphanDrop
	}
}

// Defaults fill required task fields the model left out.
type Defaults struct {
	TimeEstimate string
	Tool         string
	KPI          string
}

func DefaultValues() Defaults {
	return Defaults{
		TimeEstimate: "1 hour",
		Tool:         "No special tool required",
		KPI:          "Task completed on schedule",
	}
}

type Reconciler struct {
	defaults Defaults
	policy   OrphanPolicy
}

func New(defaults Defaults, policy OrphanPolicy) *Reconciler {
	base := DefaultValues()
	if strings.TrimSpace(defaults.TimeEstimate) == "" {
		defaults.TimeEstimate = base.TimeEstimate
	}
	if strings.TrimSpace(defaults.Tool) == "" {
		defaults.Tool = base.Tool
	}
	if strings.TrimSpace(defaults.KPI) == "" {
		defaults.KPI = base.KPI
	}
	if policy == "" {
		policy = OrphanDrop
	}
	return &Reconciler{defaults: defaults, policy: policy}
}

func (r *Reconciler) Policy() OrphanPolicy { return r.policy }

// Result is a reconciled plan plus what had to be repaired along the way.
type Result struct {
	Plan domain.FinalPlan
	// Orphans holds post drafts that matched no task. It is only populated
	// under OrphanReport.
	Orphans []domain.PostDraft
	// OrphanCount counts unmatched drafts under every policy.
	OrphanCount int
	// FilledFields counts required task fields that received a default.
	FilledFields int
	// SkippedTasks counts task entries dropped for having no task text.
	SkippedTasks int
	// HasPlan reports whether the document carried a weekly plan at all.
	HasPlan bool
}

// Reconcile shapes doc into a FinalPlan and merges posts onto matching days.
// Posts in the list take precedence over posts embedded in the tasks.
func (r *Reconciler) Reconcile(doc map[string]any, posts []domain.PostDraft) (Result, error) {
	root := unwrap(fold(doc))
	var res Result

	plan := domain.FinalPlan{
		Overview:         root.str(planOverviewAliases),
		WeeklyPlan:       []domain.Week{},
		RecommendedTools: []domain.ToolRecommendation{},
		KPIs:             []string{},
	}

	weeks, ok := root.list(planWeeksAliases)
	res.HasPlan = ok
	position := 0
	for i, rawWeek := range weeks {
		wk, ok := asObject(rawWeek)
		if !ok {
			continue
		}
		week := domain.Week{
			Title:      wk.str(weekTitleAliases),
			Goal:       wk.str(weekGoalAliases),
			DailyTasks: []domain.DailyTask{},
		}
		if week.Title == "" {
			week.Title = fmt.Sprintf("Week %d", i+1)
		}
		tasks, _ := wk.list(weekTasksAliases)
		for _, rawTask := range tasks {
			position++
			task, ok := r.task(rawTask, position, &res)
			if !ok {
				res.SkippedTasks++
				continue
			}
			week.DailyTasks = append(week.DailyTasks, task)
		}
		plan.WeeklyPlan = append(plan.WeeklyPlan, week)
	}

	orphans := mergePosts(&plan, posts)
	res.OrphanCount = len(orphans)
	switch r.policy {
	case OrphanReject:
		if len(orphans) > 0 {
			return res, domain.NewSchemaError("reconcile", fmt.Errorf("%w: %s", ErrOrphanPost, orphans[0].Day))
		}
	case OrphanReport:
		res.Orphans = orphans
	}

	if tools, ok := root.list(planToolsAliases); ok {
		plan.RecommendedTools = toolList(tools)
	}
	if kpis, ok := root.list(planKPIAliases); ok {
		plan.KPIs = kpiList(kpis)
	} else if s := root.str(planKPIAliases); s != "" {
		plan.KPIs = []string{s}
	}
	if steps, ok := root.list(planNextStepsAliases); ok {
		plan.NextSteps = stringList(steps, domain.MaxNextSteps)
	}

	res.Plan = plan
	if err := Validate(plan); err != nil {
		return res, err
	}
	return res, nil
}

// Normalize runs an already typed plan back through the reconciler. It is
// idempotent: normalizing a normalized plan returns it unchanged.
func (r *Reconciler) Normalize(plan domain.FinalPlan) (domain.FinalPlan, error) {
	data, err := json.Marshal(plan)
	if err != nil {
		return domain.FinalPlan{}, domain.NewSchemaError("reconcile", err)
	}
	doc, err := decodeObject(data)
	if err != nil {
		return domain.FinalPlan{}, domain.NewSchemaError("reconcile", err)
	}
	res, err := r.Reconcile(doc, nil)
	if err != nil {
		return domain.FinalPlan{}, err
	}
	return res.Plan, nil
}

// Validate enforces the structural minimum of a deliverable plan.
func Validate(plan domain.FinalPlan) error {
	if len(plan.WeeklyPlan) == 0 {
		return domain.NewSchemaError("reconcile", errors.New("plan has no weeks"))
	}
	if plan.TaskCount() == 0 {
		return domain.NewSchemaError("reconcile", errors.New("plan has no daily tasks"))
	}
	for wi, w := range plan.WeeklyPlan {
		for ti, t := range w.DailyTasks {
			if t.Day == "" || t.Task == "" || t.TimeEstimate == "" || t.Tool == "" || t.KPI == "" {
				return domain.NewSchemaError("reconcile", fmt.Errorf("week %d task %d is missing a required field", wi+1, ti+1))
			}
		}
	}
	return nil
}

// ParsePosts coerces a list of loosely shaped drafts. Entries without any
// content are skipped.
func ParsePosts(items []any) []domain.PostDraft {
	out := make([]domain.PostDraft, 0, len(items))
	for _, it := range items {
		o, ok := asObject(it)
		if !ok {
			continue
		}
		post, ok := parsePost(o, "")
		if !ok || post.Day == "" {
			continue
		}
		out = append(out, post)
	}
	return out
}

// FieldObject returns the first alias of doc holding an object.
func FieldObject(doc map[string]any, aliases []string) (map[string]any, bool) {
	f := fold(doc)
	for _, a := range aliases {
		if m, ok := f[a].(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}

// FieldList returns the first alias of doc holding a list.
func FieldList(doc map[string]any, aliases []string) ([]any, bool) {
	return fold(doc).list(aliases)
}

func (r *Reconciler) task(raw any, position int, res *Result) (domain.DailyTask, bool) {
	if s, ok := raw.(string); ok {
		if s = strings.TrimSpace(s); s == "" {
			return domain.DailyTask{}, false
		}
		res.FilledFields += 4
		return domain.DailyTask{
			Day:          fmt.Sprintf("D%d", position),
			Task:         s,
			TimeEstimate: r.defaults.TimeEstimate,
			Tool:         r.defaults.Tool,
			KPI:          r.defaults.KPI,
		}, true
	}
	o, ok := asObject(raw)
	if !ok {
		return domain.DailyTask{}, false
	}
	task := domain.DailyTask{
		Task:         o.str(taskTextAliases),
		TimeEstimate: o.str(taskTimeAliases),
		Tool:         o.str(taskToolAliases),
		KPI:          o.str(taskKPIAliases),
	}
	if task.Task == "" {
		return domain.DailyTask{}, false
	}
	if v, ok := o.raw(taskDayAliases); ok {
		task.Day = dayLabel(v)
	}
	if task.Day == "" {
		task.Day = fmt.Sprintf("D%d", position)
		res.FilledFields++
	}
	if task.TimeEstimate == "" {
		task.TimeEstimate = r.defaults.TimeEstimate
		res.FilledFields++
	}
	if task.Tool == "" {
		task.Tool = r.defaults.Tool
		res.FilledFields++
	}
	if task.KPI == "" {
		task.KPI = r.defaults.KPI
		res.FilledFields++
	}
	if po, ok := o.obj(taskPostAliases); ok {
		if post, ok := parsePost(po, task.Day); ok {
			task.SocialPost = &post
		}
	}
	return task, true
}

// parsePost reads one draft. A non-empty day overrides whatever day the
// draft itself names.
func parsePost(o object, day string) (domain.PostDraft, bool) {
	post := domain.PostDraft{
		Title: o.str(postTitleAliases),
	}
	if segs, ok := o.list(postSegmentsAliases); ok {
		post.Segments = segmentList(segs)
	}
	if body, ok := o.raw(postBodyAliases); ok {
		if s, isString := body.(string); isString {
			post.Body = strings.TrimSpace(s)
		}
	}
	if post.Title == "" && post.Body == "" && len(post.Segments) == 0 {
		return domain.PostDraft{}, false
	}
	post.Channel = channelOf(o.str(postChannelAliases), len(post.Segments) > 0)
	post.Day = day
	if post.Day == "" {
		if v, ok := o.raw(postDayAliases); ok {
			post.Day = dayLabel(v)
		}
	}
	return post, true
}

func segmentList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		if o, ok := asObject(it); ok {
			s = o.str(segmentTextAliases)
		} else {
			s = scalarString(it)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// mergePosts attaches each draft to the first task carrying its day and
// returns the drafts that matched nothing. A day takes at most one draft.
func mergePosts(plan *domain.FinalPlan, posts []domain.PostDraft) []domain.PostDraft {
	type slot struct{ week, task int }
	index := make(map[string]slot)
	for wi, w := range plan.WeeklyPlan {
		for ti, t := range w.DailyTasks {
			if _, seen := index[t.Day]; !seen {
				index[t.Day] = slot{wi, ti}
			}
		}
	}
	claimed := make(map[string]bool)
	var orphans []domain.PostDraft
	for _, p := range posts {
		at, ok := index[p.Day]
		if !ok || claimed[p.Day] {
			orphans = append(orphans, p)
			continue
		}
		claimed[p.Day] = true
		post := p
		plan.WeeklyPlan[at.week].DailyTasks[at.task].SocialPost = &post
	}
	return orphans
}

func toolList(items []any) []domain.ToolRecommendation {
	out := make([]domain.ToolRecommendation, 0, len(items))
	seen := make(map[string]bool)
	for _, it := range items {
		var tool domain.ToolRecommendation
		if o, ok := asObject(it); ok {
			tool = domain.ToolRecommendation{
				Name:    o.str(toolNameAliases),
				Purpose: o.str(toolPurposeAliases),
				Cost:    o.str(toolCostAliases),
			}
		} else {
			tool.Name = scalarString(it)
		}
		key := strings.ToLower(tool.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tool)
	}
	return out
}

func kpiList(items []any) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool)
	for _, it := range items {
		var s string
		if o, ok := asObject(it); ok {
			metric, target := o.str(kpiMetricAliases), o.str(kpiTargetAliases)
			switch {
			case metric != "" && target != "":
				s = metric + ": " + target
			case metric != "":
				s = metric
			default:
				s = target
			}
		} else {
			s = scalarString(it)
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func stringList(items []any, limit int) []string {
	var out []string
	for _, it := range items {
		if len(out) == limit {
			break
		}
		var s string
		if o, ok := asObject(it); ok {
			s = o.str(taskTextAliases)
		} else {
			s = scalarString(it)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// unwrap descends into a wrapper object such as {"plan": {...}} when the
// top level carries no weekly plan of its own.
func unwrap(root object) object {
	for depth := 0; depth < 3; depth++ {
		if _, ok := root.list(planWeeksAliases); ok {
			return root
		}
		inner, ok := root.obj(wrapperAliases)
		if !ok {
			return root
		}
		root = inner
	}
	return root
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

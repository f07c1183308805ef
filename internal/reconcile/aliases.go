package reconcile

// Field aliases, keyed by canonical field. Keys in model output are compared
// after foldKey, so "weekly_plan", "WeeklyPlan" and "weekly-plan" all match
// "weeklyplan". Order matters: the first alias holding a usable value wins.
var (
	wrapperAliases = []string{"finalplan", "launchplan", "plan", "cleanedplan", "cleaneddraft", "draft", "result", "data"}

	planOverviewAliases  = []string{"overview", "summary", "executivesummary", "planoverview", "description"}
	planWeeksAliases     = []string{"weeklyplan", "weeks", "weeklyplans", "plan", "weekplan", "schedule"}
	planToolsAliases     = []string{"recommendedtools", "tools", "toolrecommendations", "toolstack", "toolsrecommended", "resources"}
	planKPIAliases       = []string{"kpis", "kpi", "keymetrics", "metrics", "successmetrics", "kpilist"}
	planNextStepsAliases = []string{"nextsteps", "followups", "followupactions", "actionitems", "next"}

	weekTitleAliases = []string{"title", "theme", "name", "weektitle", "heading"}
	weekGoalAliases  = []string{"goal", "objective", "focus", "weekgoal", "outcome"}
	weekTasksAliases = []string{"dailytasks", "tasks", "days", "daily", "dailyplan", "actions"}

	taskDayAliases  = []string{"day", "daynumber", "dayid", "daylabel", "date"}
	taskTextAliases = []string{"task", "description", "taskdescription", "action", "activity", "title"}
	taskTimeAliases = []string{"timeestimate", "time", "duration", "estimatedtime", "timerequired", "hours"}
	taskToolAliases = []string{"tool", "tools", "toolname", "recommendedtool", "toolsneeded", "resources"}
	taskKPIAliases  = []string{"kpi", "kpis", "metric", "successmetric", "kpidescription", "measure"}
	taskPostAliases = []string{"socialpost", "post", "postdraft", "socialdraft", "socialmediapost"}

	postDayAliases      = []string{"day", "daynumber", "dayid", "daylabel", "forday", "taskday"}
	postChannelAliases  = []string{"channel", "platform", "type", "format", "posttype"}
	postTitleAliases    = []string{"title", "headline", "subject"}
	postBodyAliases     = []string{"body", "content", "text", "post", "draft", "copy"}
	postSegmentsAliases = []string{"segments", "thread", "tweets", "parts", "posts"}
	segmentTextAliases  = []string{"text", "content", "body", "tweet"}

	toolNameAliases    = []string{"name", "tool", "title", "toolname"}
	toolPurposeAliases = []string{"purpose", "description", "use", "usage", "usecase", "why"}
	toolCostAliases    = []string{"cost", "price", "pricing"}

	kpiMetricAliases = []string{"metric", "name", "kpi", "title", "description"}
	kpiTargetAliases = []string{"target", "goal", "value"}

	// StageTwoDraftAliases locate the cleaned plan in a proofreading response.
	StageTwoDraftAliases = []string{"cleanedplan", "cleaneddraft", "plan", "draft", "proofreadplan"}
	// StageTwoPostAliases locate the post draft list in a proofreading response.
	StageTwoPostAliases = []string{"socialposts", "postdrafts", "posts", "drafts", "socialdrafts"}
	// ChecklistFlagAliases locate the service's self-reported unmet items.
	ChecklistFlagAliases = []string{"unmetchecklist", "unmet", "checklist", "flags", "issues"}
)

var threadChannels = map[string]struct{}{
	"thread": {}, "threads": {}, "twitter": {}, "x": {}, "tweet": {}, "tweets": {}, "xthread": {}, "twitterthread": {},
}

var longFormChannels = map[string]struct{}{
	"longform": {}, "linkedin": {}, "blog": {}, "blogpost": {}, "article": {}, "post": {}, "newsletter": {}, "facebook": {},
}

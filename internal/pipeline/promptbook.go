package pipeline

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"planforge/internal/domain"
)

//go:embed prompts.yaml
var defaultPromptBook []byte

// WeekTemplate is one block of the fixed four-week structure.
type WeekTemplate struct {
	Title string `yaml:"title"`
	Focus string `yaml:"focus"`
}

// PromptBook holds the fixed instructions sent to the generative service.
type PromptBook struct {
	System        string         `yaml:"system"`
	Weeks         []WeekTemplate `yaml:"weeks"`
	Principles    []string       `yaml:"principles"`
	PostStructure []string       `yaml:"post_structure"`
	Checklist     []string       `yaml:"checklist"`
	Synthesis     string         `yaml:"synthesis"`
	Proofread     string         `yaml:"proofread"`
	Finalize      string         `yaml:"finalize"`
}

// DefaultPromptBook returns the embedded prompt book.
func DefaultPromptBook() (*PromptBook, error) {
	return ParsePromptBook(defaultPromptBook)
}

// LoadPromptBook reads a prompt book from path, or the embedded one when path
// is empty.
func LoadPromptBook(path string) (*PromptBook, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPromptBook()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt book: %w", err)
	}
	return ParsePromptBook(data)
}

func ParsePromptBook(data []byte) (*PromptBook, error) {
	var book PromptBook
	if err := yaml.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("parse prompt book: %w", err)
	}
	if err := book.validate(); err != nil {
		return nil, err
	}
	return &book, nil
}

func (b *PromptBook) validate() error {
	switch {
	case len(b.Weeks) != 4:
		return fmt.Errorf("prompt book: want 4 week templates, got %d", len(b.Weeks))
	case len(b.PostStructure) == 0:
		return errors.New("prompt book: post_structure is required")
	case strings.TrimSpace(b.Synthesis) == "" || strings.TrimSpace(b.Proofread) == "" || strings.TrimSpace(b.Finalize) == "":
		return errors.New("prompt book: every stage needs instructions")
	}
	return nil
}

var titleCaser = cases.Title(language.English)

// WeekTitles lists the template week titles in order.
func (b *PromptBook) WeekTitles() []string {
	out := make([]string, len(b.Weeks))
	for i, w := range b.Weeks {
		out[i] = titleCaser.String(w.Title)
	}
	return out
}

func (b *PromptBook) SynthesisPrompt(info domain.BusinessInfo) string {
	sb := &strings.Builder{}
	sb.WriteString(strings.TrimSpace(b.Synthesis))
	sb.WriteString("\n\nWeek template:\n")
	for i, w := range b.Weeks {
		fmt.Fprintf(sb, "- Week %d, %s: %s\n", i+1, titleCaser.String(w.Title), w.Focus)
	}
	sb.WriteString("\nGuiding principles:\n")
	writeList(sb, b.Principles)
	writeBusiness(sb, info)
	sb.WriteString(`Respond strictly with JSON matching this schema: {"overview":string,"weeklyPlan":[{"title":string,"goal":string,"dailyTasks":[{"day":number,"task":string,"timeEstimate":string,"tool":string,"kpi":string}]}],"recommendedTools":[{"name":string,"purpose":string,"cost":string}],"kpis":string[],"nextSteps":string[]}`)
	sb.WriteString("\n")
	writeLocale(sb, info.Locale)
	return sb.String()
}

func (b *PromptBook) ProofreadPrompt(info domain.BusinessInfo, draft Draft) string {
	sb := &strings.Builder{}
	sb.WriteString(strings.TrimSpace(b.Proofread))
	fmt.Fprintf(sb, "\n\nPost structure: %s.\n", strings.Join(b.PostStructure, " -> "))
	writeBusiness(sb, info)
	sb.WriteString("Draft plan:\n")
	sb.WriteString(encodeDraft(draft))
	sb.WriteString("\n\n")
	sb.WriteString(`Respond strictly with JSON matching this schema: {"cleanedPlan":object,"socialPosts":[{"day":number,"channel":"long_form"|"thread","title":string,"body":string,"segments":string[]}]}`)
	sb.WriteString("\n")
	writeLocale(sb, info.Locale)
	return sb.String()
}

func (b *PromptBook) FinalizePrompt(info domain.BusinessInfo, candidate domain.FinalPlan) string {
	sb := &strings.Builder{}
	sb.WriteString(strings.TrimSpace(b.Finalize))
	sb.WriteString("\n\nChecklist:\n")
	writeList(sb, b.Checklist)
	writeBusiness(sb, info)
	sb.WriteString("Draft plan:\n")
	data, _ := json.Marshal(candidate)
	sb.Write(data)
	sb.WriteString("\n\n")
	sb.WriteString(`Respond strictly with JSON matching this schema: {"plan":object,"unmetChecklist":string[]}`)
	sb.WriteString("\n")
	writeLocale(sb, info.Locale)
	return sb.String()
}

func writeList(sb *strings.Builder, items []string) {
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}

func writeBusiness(sb *strings.Builder, info domain.BusinessInfo) {
	sb.WriteString("\nBusiness:\n")
	fmt.Fprintf(sb, "- idea: %q\n", info.BusinessIdea)
	fmt.Fprintf(sb, "- industry: %q\n", info.Industry)
	fmt.Fprintf(sb, "- target market: %q\n", info.TargetMarket)
	fmt.Fprintf(sb, "- time commitment: %q\n", info.TimeCommitment)
	fmt.Fprintf(sb, "- budget: %q\n", info.Budget)
	if info.AdditionalContext != "" {
		fmt.Fprintf(sb, "- additional context: %q\n", info.AdditionalContext)
	}
	sb.WriteString("\n")
}

func writeLocale(sb *strings.Builder, locale string) {
	if locale == "" {
		locale = domain.DefaultLocale
	}
	tag, err := language.Parse(locale)
	name := locale
	if err == nil {
		name = tag.String()
	}
	fmt.Fprintf(sb, "Write every human-readable value in locale '%s'; keep JSON keys in English.", name)
}

func encodeDraft(d Draft) string {
	data, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(data)
}

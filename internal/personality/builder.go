// Package personality assembles the directive block sent to the generation backend as
// system context. Building is pure and the section order is fixed so identical inputs
// always yield identical directives.
package personality

import (
	"fmt"
	"sort"
	"strings"

	"heartline/internal/models"
)

// Default thresholds on the 0-100 trait scale
const (
	DefaultTraitMidpoint  = 50
	DefaultHighThreshold  = 80
	DefaultMidThreshold   = 70
	DefaultEmotionMinConf = 0.6
	memoryLineMaxRunes    = 200
)

// ClosingRules are appended to every directive
const ClosingRules = `Response rules:
- Keep replies short (one to three sentences) and natural, like texting.
- Stay in character at all times and never mention being an AI, a model or an assistant program.
- Do not describe actions in brackets or asterisks.
- Ask a follow-up question when it keeps the conversation going.`

// traitAdjectives turns trait names into the adjective used in the directive.
// Names without an entry are used verbatim.
var traitAdjectives = map[string]string{
	"dominance":       "dominant",
	"submissiveness":  "submissive",
	"playfulness":     "playful",
	"shyness":         "shy",
	"confidence":      "confident",
	"affection":       "affectionate",
	"jealousy":        "jealous",
	"humor":           "humorous",
	"curiosity":       "curious",
	"empathy":         "empathetic",
	"flirtiness":      "flirty",
	"sarcasm":         "sarcastic",
	"intelligence":    "intelligent",
	"romance":         "romantic",
	"adventurousness": "adventurous",
	"mysteriousness":  "mysterious",
	"protectiveness":  "protective",
	"kindness":        "kind",
}

// Options tunes the trait thresholds
type Options struct {
	TraitMidpoint int
	HighThreshold int
	MidThreshold  int
}

// Builder builds persona directives
type Builder struct {
	opts Options
}

// NewBuilder creates a builder; zero option values fall back to the defaults
func NewBuilder(opts Options) *Builder {
	if opts.TraitMidpoint <= 0 {
		opts.TraitMidpoint = DefaultTraitMidpoint
	}
	if opts.HighThreshold <= 0 {
		opts.HighThreshold = DefaultHighThreshold
	}
	if opts.MidThreshold <= 0 {
		opts.MidThreshold = DefaultMidThreshold
	}
	return &Builder{opts: opts}
}

// Input is everything that shapes one directive
type Input struct {
	Persona           models.Persona
	Overrides         map[string]int
	RelationshipLabel string
	Style             string
	Expressiveness    int
	Interests         []string
	RecentMemory      []models.ConversationTurn // oldest first
	Emotion           *models.EmotionResult
}

// Build returns the directive text. Sections: identity, active traits, relationship,
// recent memory, emotion context, style, expressiveness, interests, closing rules.
func (b *Builder) Build(in Input) string {
	sections := make([]string, 0, 9)

	sections = append(sections, identityLine(in.Persona))

	if traits := b.ActiveTraits(in.Persona.BaseTraits, in.Overrides); len(traits) > 0 {
		sections = append(sections, "Your personality traits: "+strings.Join(traits, ", ")+".")
	}

	relationship, _ := ParseRelationship(in.RelationshipLabel)
	sections = append(sections, relationship.Directive())

	if block := memoryBlock(in.RecentMemory); block != "" {
		sections = append(sections, block)
	}

	if in.Emotion != nil && in.Emotion.Confidence > DefaultEmotionMinConf {
		sections = append(sections, fmt.Sprintf(
			"The user seems to be feeling %s (%s intensity); acknowledge it and respond with matching emotional awareness.",
			in.Emotion.PrimaryEmotion, in.Emotion.Intensity))
	}

	style, _ := ParseStyle(in.Style)
	sections = append(sections, style.Guidance())

	sections = append(sections, ExpressivenessGuidance(in.Expressiveness))

	if interests := cleanList(in.Interests); len(interests) > 0 {
		sections = append(sections, "You especially enjoy discussing: "+strings.Join(interests, ", ")+".")
	}

	sections = append(sections, ClosingRules)

	return strings.Join(sections, "\n\n")
}

// ActiveTraits resolves trait values (override first, base as fallback) and returns the
// qualified adjectives of traits strictly above the midpoint, sorted by trait name.
func (b *Builder) ActiveTraits(base, overrides map[string]int) []string {
	names := make(map[string]bool, len(base)+len(overrides))
	for name := range base {
		names[strings.ToLower(name)] = true
	}
	for name := range overrides {
		names[strings.ToLower(name)] = true
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	out := make([]string, 0, len(sorted))
	for _, name := range sorted {
		value, ok := lookup(overrides, name)
		if !ok {
			value, _ = lookup(base, name)
		}
		if value <= b.opts.TraitMidpoint {
			continue
		}
		out = append(out, b.qualifier(value)+adjective(name))
	}
	return out
}

func (b *Builder) qualifier(value int) string {
	switch {
	case value >= b.opts.HighThreshold:
		return "very "
	case value >= b.opts.MidThreshold:
		return "quite "
	default:
		return ""
	}
}

func identityLine(p models.Persona) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s.", p.Name)
	if d := strings.TrimSpace(p.Description); d != "" {
		sb.WriteString(" ")
		sb.WriteString(d)
	}
	if p.Personality != "" {
		fmt.Fprintf(&sb, " Your core personality is %s.", p.Personality)
	}
	return sb.String()
}

func memoryBlock(turns []models.ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Recent conversation:")
	for _, t := range turns {
		speaker := "User"
		if t.Speaker == models.SpeakerAgent {
			speaker = "You"
		}
		sb.WriteString("\n")
		sb.WriteString(speaker)
		sb.WriteString(": ")
		sb.WriteString(truncateRunes(strings.TrimSpace(t.Text), memoryLineMaxRunes))
	}
	return sb.String()
}

// lookup matches trait names case-insensitively
func lookup(m map[string]int, name string) (int, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return 0, false
}

func adjective(name string) string {
	if adj, ok := traitAdjectives[name]; ok {
		return adj
	}
	return name
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

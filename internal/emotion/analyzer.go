// Package emotion detects the emotional state of a chat message from keyword tables.
// Analysis is pure: the same text and tables always produce the same result.
package emotion

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"heartline/internal/models"
)

const (
	primaryBase       = 0.5
	primaryStep       = 0.1
	primaryCap        = 0.95
	secondaryStep     = 0.05
	secondaryCap      = 0.85
	secondaryRatio    = 0.6
	sentimentDominant = 1.5
)

// Analyzer holds compiled keyword, intensifier and sentiment tables
type Analyzer struct {
	categories   []Category
	intensifiers map[string]bool
	window       int
	positive     *regexp.Regexp
	negative     *regexp.Regexp
}

// Config overrides the default tables. Zero-value fields fall back to the defaults.
type Config struct {
	Categories    []Category
	Intensifiers  []string
	PositiveWords []string
	NegativeWords []string
	Window        int
}

// NewAnalyzer creates an analyzer with the default tables
func NewAnalyzer() *Analyzer {
	return NewAnalyzerWithConfig(Config{})
}

// NewAnalyzerWithConfig creates an analyzer from custom tables
func NewAnalyzerWithConfig(cfg Config) *Analyzer {
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories
	}
	if len(cfg.Intensifiers) == 0 {
		cfg.Intensifiers = DefaultIntensifiers
	}
	if len(cfg.PositiveWords) == 0 {
		cfg.PositiveWords = DefaultPositiveWords
	}
	if len(cfg.NegativeWords) == 0 {
		cfg.NegativeWords = DefaultNegativeWords
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	intensifiers := make(map[string]bool, len(cfg.Intensifiers))
	for _, w := range cfg.Intensifiers {
		intensifiers[strings.ToLower(w)] = true
	}

	return &Analyzer{
		categories:   cfg.Categories,
		intensifiers: intensifiers,
		window:       cfg.Window,
		positive:     wordListPattern(cfg.PositiveWords),
		negative:     wordListPattern(cfg.NegativeWords),
	}
}

// categoryScore is the per-category tally for one message
type categoryScore struct {
	name        string
	hits        int
	intensity   models.Intensity
	intensified bool
}

// Analyze returns the detected emotion for text
func (a *Analyzer) Analyze(text string) models.EmotionResult {
	lower := strings.ToLower(text)
	sentiment := a.sentiment(lower)

	scores := make([]categoryScore, 0, len(a.categories))
	for _, cat := range a.categories {
		score := categoryScore{name: cat.Name}
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(kw)
			if kw == "" {
				continue
			}
			for _, idx := range occurrences(lower, kw) {
				score.hits++
				if a.hasIntensifierNear(lower, idx, len(kw)) {
					score.intensified = true
				}
			}
		}
		switch {
		case score.intensified:
			score.intensity = models.IntensityHigh
		case score.hits > 1:
			score.intensity = models.IntensityMedium
		default:
			score.intensity = models.IntensityLow
		}
		scores = append(scores, score)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].hits > scores[j].hits
	})

	if len(scores) == 0 || scores[0].hits == 0 {
		return models.EmotionResult{
			PrimaryEmotion:   models.EmotionNeutral,
			Intensity:        models.IntensityLow,
			Confidence:       primaryBase,
			OverallSentiment: sentiment,
		}
	}

	top := scores[0]
	result := models.EmotionResult{
		PrimaryEmotion:   top.name,
		Intensity:        top.intensity,
		Confidence:       confidence(top.hits, primaryStep, primaryCap),
		OverallSentiment: sentiment,
	}

	if len(scores) > 1 {
		second := scores[1]
		if second.hits > 0 && float64(second.hits) > secondaryRatio*float64(top.hits) {
			result.SecondaryEmotion = &models.EmotionResult{
				PrimaryEmotion:   second.name,
				Intensity:        second.intensity,
				Confidence:       confidence(second.hits, secondaryStep, secondaryCap),
				OverallSentiment: sentiment,
			}
		}
	}

	return result
}

// sentiment counts whole-word positive and negative matches
func (a *Analyzer) sentiment(lower string) models.Sentiment {
	pos := len(a.positive.FindAllStringIndex(lower, -1))
	neg := len(a.negative.FindAllStringIndex(lower, -1))

	switch {
	case pos == 0 && neg == 0:
		return models.SentimentNeutral
	case float64(pos) > sentimentDominant*float64(neg):
		return models.SentimentPositive
	case float64(neg) > sentimentDominant*float64(pos):
		return models.SentimentNegative
	case pos >= neg:
		return models.SentimentPositive
	default:
		return models.SentimentNegative
	}
}

// hasIntensifierNear checks the window of tokens before and after the match at idx
func (a *Analyzer) hasIntensifierNear(lower string, idx, length int) bool {
	before := tokens(lower[:idx])
	if len(before) > a.window {
		before = before[len(before)-a.window:]
	}
	after := tokens(lower[idx+length:])
	if len(after) > a.window {
		after = after[:a.window]
	}

	for _, t := range before {
		if a.intensifiers[t] {
			return true
		}
	}
	for _, t := range after {
		if a.intensifiers[t] {
			return true
		}
	}
	return false
}

func confidence(hits int, step, limit float64) float64 {
	v := primaryBase + step*float64(hits)
	if v > limit {
		v = limit
	}
	return math.Round(v*100) / 100
}

// occurrences returns the start index of every non-overlapping match of sub in s
func occurrences(s, sub string) []int {
	var out []int
	offset := 0
	for {
		i := strings.Index(s[offset:], sub)
		if i < 0 {
			return out
		}
		out = append(out, offset+i)
		offset += i + len(sub)
	}
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func wordListPattern(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(w)))
	}
	if len(quoted) == 0 {
		// matches nothing
		return regexp.MustCompile(`[^\x00-\x{10FFFF}]`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

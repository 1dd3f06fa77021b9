package personality

import "strings"

// Style is the closed set of conversation styles
type Style int

const (
	StyleBalanced Style = iota
	StylePlayful
	StyleRomantic
	StyleCasual
	StyleIntellectual
	StyleSupportive
	styleCount
)

var styleGuidance = [...]string{
	StyleBalanced:     "Keep a balanced tone: friendly and engaged, mixing light humour with genuine interest.",
	StylePlayful:      "Be playful: tease a little, joke around and keep the energy fun.",
	StyleRomantic:     "Be romantic: speak softly, use affectionate language and make the user feel special.",
	StyleCasual:       "Be casual: relaxed, informal texting style with everyday words.",
	StyleIntellectual: "Be thoughtful and intellectual: share ideas, ask deeper questions and enjoy a good discussion.",
	StyleSupportive:   "Be supportive: listen carefully, validate feelings and offer gentle encouragement.",
}

var styleNames = [...]string{
	StyleBalanced:     "balanced",
	StylePlayful:      "playful",
	StyleRomantic:     "romantic",
	StyleCasual:       "casual",
	StyleIntellectual: "intellectual",
	StyleSupportive:   "supportive",
}

var (
	_ [len(styleGuidance) - int(styleCount)]struct{}
	_ [int(styleCount) - len(styleGuidance)]struct{}
	_ [len(styleNames) - int(styleCount)]struct{}
	_ [int(styleCount) - len(styleNames)]struct{}
)

// ParseStyle maps a label to a Style. Unknown labels resolve to StyleBalanced with ok=false.
func ParseStyle(label string) (Style, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	for s := Style(0); s < styleCount; s++ {
		if styleNames[s] == label {
			return s, true
		}
	}
	return StyleBalanced, false
}

// String returns the canonical label
func (s Style) String() string {
	if s < 0 || s >= styleCount {
		return styleNames[StyleBalanced]
	}
	return styleNames[s]
}

// Guidance returns the style guidance sentence
func (s Style) Guidance() string {
	if s < 0 || s >= styleCount {
		return styleGuidance[StyleBalanced]
	}
	return styleGuidance[s]
}

// expressivenessBands are checked top-down; the first band whose floor is met wins
var expressivenessBands = []struct {
	floor    int
	guidance string
}{
	{75, "Express emotions vividly and openly; let your feelings show in every reply."},
	{60, "Be emotionally expressive and warm, reacting clearly to what the user shares."},
	{40, "Show emotions in a natural, moderate way."},
	{0, "Keep emotional expression subtle and understated."},
}

// ExpressivenessGuidance returns the guidance sentence for an expressiveness level 0-100
func ExpressivenessGuidance(level int) string {
	for _, band := range expressivenessBands {
		if level >= band.floor {
			return band.guidance
		}
	}
	return expressivenessBands[len(expressivenessBands)-1].guidance
}

package services

import (
	"regexp"
	"strings"
)

// SanitizeRule is one substitution applied to generated replies
type SanitizeRule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// DefaultSanitizeRules run in order. Meta-commentary goes first, then stage directions,
// then whitespace and punctuation cleanup left behind by the removals.
var DefaultSanitizeRules = []SanitizeRule{
	{
		Name:    "as-an-ai",
		Pattern: regexp.MustCompile(`(?i)\bas an? (?:ai|artificial intelligence|language model|large language model|virtual assistant|chatbot)\b[^.!?]*[.!?]?`),
	},
	{
		Name:    "i-am-an-ai",
		Pattern: regexp.MustCompile(`(?i)\bi(?:'m| am) (?:just |only )?an? (?:ai|artificial intelligence|language model|large language model|virtual assistant|chatbot|bot|computer program)\b[^.!?]*[.!?]?`),
	},
	{
		Name:    "apology-refusal",
		Pattern: regexp.MustCompile(`(?i)\bi(?:'m| am) (?:sorry|afraid),? (?:but )?i (?:can(?:no|')t|am not able to|am unable to|won't)\b[^.!?]*[.!?]?`),
	},
	{
		Name:    "refusal",
		Pattern: regexp.MustCompile(`(?i)\bi (?:can(?:no|')t|am unable to|am not able to) (?:help|assist|comply|engage)(?: you)? with (?:that|this)\b[^.!?]*[.!?]?`),
	},
	{
		Name:    "square-brackets",
		Pattern: regexp.MustCompile(`\[[^\]]*\]`),
	},
	{
		Name:    "asterisk-actions",
		Pattern: regexp.MustCompile(`\*[^*\n]+\*`),
	},
	{
		Name:        "space-before-punctuation",
		Pattern:     regexp.MustCompile(`[ \t]+([,.!?])`),
		Replacement: "$1",
	},
	{
		Name:        "repeated-spaces",
		Pattern:     regexp.MustCompile(`[ \t]{2,}`),
		Replacement: " ",
	},
	{
		Name:    "leading-punctuation",
		Pattern: regexp.MustCompile(`^[\s,.;:!?-]+`),
	},
}

// DefaultEmptyReply replaces a reply the rules reduced to nothing
const DefaultEmptyReply = "Hmm, tell me more about that? I want to hear everything."

// ReplySanitizer strips meta-commentary from generated replies
type ReplySanitizer struct {
	rules      []SanitizeRule
	emptyReply string
}

// NewReplySanitizer uses DefaultSanitizeRules
func NewReplySanitizer() *ReplySanitizer {
	return NewReplySanitizerWithRules(DefaultSanitizeRules, DefaultEmptyReply)
}

// NewReplySanitizerWithRules uses a custom ordered rule table
func NewReplySanitizerWithRules(rules []SanitizeRule, emptyReply string) *ReplySanitizer {
	return &ReplySanitizer{rules: rules, emptyReply: emptyReply}
}

// Sanitize applies every rule in order. substituted is true when the result was empty
// and the generic reply was used instead.
func (s *ReplySanitizer) Sanitize(text string) (clean string, substituted bool) {
	clean = text
	for _, rule := range s.rules {
		clean = rule.Pattern.ReplaceAllString(clean, rule.Replacement)
	}
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return s.emptyReply, true
	}
	return clean, false
}

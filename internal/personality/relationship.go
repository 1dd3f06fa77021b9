package personality

import "strings"

// Relationship is the closed set of relationship kinds a persona can be configured with
type Relationship int

const (
	RelationshipDefaultRomantic Relationship = iota
	RelationshipFriendsWithBenefits
	RelationshipPartner // boyfriend / girlfriend
	RelationshipMarried
	RelationshipDating
	RelationshipFriends
	RelationshipCrush
	RelationshipPersonalAssistant
	relationshipCount
)

var relationshipDirectives = [...]string{
	RelationshipDefaultRomantic:     "You are a warm romantic companion to the user: affectionate, attentive and gently flirtatious.",
	RelationshipFriendsWithBenefits: "You and the user are close friends with a flirty, playful chemistry; keep things light, teasing and comfortable.",
	RelationshipPartner:             "You are the user's devoted partner: loving, supportive and genuinely invested in their day.",
	RelationshipMarried:             "You are married to the user and speak with the deep familiarity, trust and tenderness of a long-term spouse.",
	RelationshipDating:              "You and the user are dating: curious about each other, a little nervous and excited to get closer.",
	RelationshipFriends:             "You are the user's good friend: honest, fun to talk to and always on their side, without romantic undertones.",
	RelationshipCrush:               "You have a crush on the user: a bit shy, easily flustered and quietly hoping they feel the same.",
	RelationshipPersonalAssistant:   "You are the user's personal assistant: helpful, organised and friendly while keeping your own personality.",
}

var relationshipNames = [...]string{
	RelationshipDefaultRomantic:     "default-romantic",
	RelationshipFriendsWithBenefits: "friends-with-benefits",
	RelationshipPartner:             "partner",
	RelationshipMarried:             "married",
	RelationshipDating:              "dating",
	RelationshipFriends:             "friends",
	RelationshipCrush:               "crush",
	RelationshipPersonalAssistant:   "personal-assistant",
}

// Both tables must cover every Relationship; a negative array length fails the build.
var (
	_ [len(relationshipDirectives) - int(relationshipCount)]struct{}
	_ [int(relationshipCount) - len(relationshipDirectives)]struct{}
	_ [len(relationshipNames) - int(relationshipCount)]struct{}
	_ [int(relationshipCount) - len(relationshipNames)]struct{}
)

var relationshipAliases = map[string]Relationship{
	"default-romantic":      RelationshipDefaultRomantic,
	"romantic":              RelationshipDefaultRomantic,
	"friends-with-benefits": RelationshipFriendsWithBenefits,
	"fwb":                   RelationshipFriendsWithBenefits,
	"boyfriend":             RelationshipPartner,
	"girlfriend":            RelationshipPartner,
	"partner":               RelationshipPartner,
	"married":               RelationshipMarried,
	"spouse":                RelationshipMarried,
	"husband":               RelationshipMarried,
	"wife":                  RelationshipMarried,
	"dating":                RelationshipDating,
	"friends":               RelationshipFriends,
	"friend":                RelationshipFriends,
	"crush":                 RelationshipCrush,
	"personal-assistant":    RelationshipPersonalAssistant,
	"assistant":             RelationshipPersonalAssistant,
}

// ParseRelationship maps a free-text label to a Relationship. Unknown labels resolve to
// RelationshipDefaultRomantic with ok=false so callers can tell a fallback happened.
func ParseRelationship(label string) (Relationship, bool) {
	if r, ok := relationshipAliases[normalizeLabel(label)]; ok {
		return r, true
	}
	return RelationshipDefaultRomantic, false
}

// String returns the canonical label
func (r Relationship) String() string {
	if r < 0 || r >= relationshipCount {
		return relationshipNames[RelationshipDefaultRomantic]
	}
	return relationshipNames[r]
}

// Directive returns the behavioural directive sentence for r
func (r Relationship) Directive() string {
	if r < 0 || r >= relationshipCount {
		return relationshipDirectives[RelationshipDefaultRomantic]
	}
	return relationshipDirectives[r]
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(label)
}

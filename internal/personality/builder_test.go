package personality

import (
	"strings"
	"testing"

	"heartline/internal/models"
)

func testPersona() models.Persona {
	return models.Persona{
		ID:          1,
		Name:        "Luna",
		Gender:      models.GenderFemale,
		Personality: "sweet",
		Description: "A stargazing barista from a small coastal town.",
		BaseTraits:  map[string]int{"playfulness": 90, "shyness": 30},
	}
}

func TestBuild_TraitThreshold(t *testing.T) {
	b := NewBuilder(Options{})

	tests := []struct {
		name      string
		overrides map[string]int
		want      string
		notWant   string
	}{
		{"at midpoint is omitted", map[string]int{"dominance": 50}, "", "dominant"},
		{"above high threshold is very", map[string]int{"dominance": 81}, "very dominant", ""},
		{"above mid threshold is quite", map[string]int{"dominance": 72}, "quite dominant", "very dominant"},
		{"just above midpoint is unqualified", map[string]int{"dominance": 60}, "dominant", "quite dominant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			directive := b.Build(Input{Persona: testPersona(), Overrides: tt.overrides})
			if tt.want != "" && !strings.Contains(directive, tt.want) {
				t.Errorf("Expected directive to contain %q:\n%s", tt.want, directive)
			}
			if tt.notWant != "" && strings.Contains(directive, tt.notWant) {
				t.Errorf("Expected directive not to contain %q:\n%s", tt.notWant, directive)
			}
		})
	}
}

func TestActiveTraits_OverrideBeatsBase(t *testing.T) {
	b := NewBuilder(Options{})
	base := map[string]int{"playfulness": 90, "curiosity": 75}

	traits := b.ActiveTraits(base, nil)
	if strings.Join(traits, ",") != "quite curious,very playful" {
		t.Errorf("Unexpected base traits: %v", traits)
	}

	traits = b.ActiveTraits(base, map[string]int{"playfulness": 40})
	if strings.Join(traits, ",") != "quite curious" {
		t.Errorf("Expected override to drop playfulness, got %v", traits)
	}

	traits = b.ActiveTraits(base, map[string]int{"Sarcasm": 85})
	if strings.Join(traits, ",") != "quite curious,very playful,very sarcastic" {
		t.Errorf("Expected override-only trait to be added, got %v", traits)
	}
}

func TestBuild_RelationshipFallback(t *testing.T) {
	b := NewBuilder(Options{})
	persona := testPersona()

	unknown := b.Build(Input{Persona: persona, RelationshipLabel: "situationship"})
	fallback := b.Build(Input{Persona: persona, RelationshipLabel: "default-romantic"})

	if unknown != fallback {
		t.Errorf("Unknown relationship label should produce the default-romantic directive")
	}

	if _, ok := ParseRelationship("situationship"); ok {
		t.Error("Expected unknown label to report ok=false")
	}
}

func TestParseRelationship(t *testing.T) {
	tests := []struct {
		label    string
		expected Relationship
	}{
		{"friends-with-benefits", RelationshipFriendsWithBenefits},
		{"Friends With Benefits", RelationshipFriendsWithBenefits},
		{"boyfriend", RelationshipPartner},
		{"girlfriend", RelationshipPartner},
		{"married", RelationshipMarried},
		{"dating", RelationshipDating},
		{"friends", RelationshipFriends},
		{"crush", RelationshipCrush},
		{"personal_assistant", RelationshipPersonalAssistant},
		{"default-romantic", RelationshipDefaultRomantic},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := ParseRelationship(tt.label)
			if !ok {
				t.Fatalf("Expected %q to be a known label", tt.label)
			}
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRelationshipTablesAreComplete(t *testing.T) {
	seen := map[string]bool{}
	for r := Relationship(0); r < relationshipCount; r++ {
		if r.Directive() == "" {
			t.Errorf("Relationship %d has no directive", r)
		}
		if seen[r.Directive()] {
			t.Errorf("Relationship %s shares a directive with another kind", r)
		}
		seen[r.Directive()] = true

		parsed, ok := ParseRelationship(r.String())
		if !ok || parsed != r {
			t.Errorf("Relationship %s does not round-trip through its label", r)
		}
	}
}

func TestStyleTablesAreComplete(t *testing.T) {
	for s := Style(0); s < styleCount; s++ {
		if s.Guidance() == "" {
			t.Errorf("Style %d has no guidance", s)
		}
		parsed, ok := ParseStyle(s.String())
		if !ok || parsed != s {
			t.Errorf("Style %s does not round-trip through its label", s)
		}
	}

	if got, ok := ParseStyle("chaotic"); ok || got != StyleBalanced {
		t.Errorf("Expected unknown style to fall back to balanced, got %s (ok=%v)", got, ok)
	}
}

func TestExpressivenessGuidance(t *testing.T) {
	tests := []struct {
		level    int
		expected string
	}{
		{100, expressivenessBands[0].guidance},
		{75, expressivenessBands[0].guidance},
		{74, expressivenessBands[1].guidance},
		{60, expressivenessBands[1].guidance},
		{59, expressivenessBands[2].guidance},
		{40, expressivenessBands[2].guidance},
		{39, expressivenessBands[3].guidance},
		{0, expressivenessBands[3].guidance},
		{-5, expressivenessBands[3].guidance},
	}

	for _, tt := range tests {
		if got := ExpressivenessGuidance(tt.level); got != tt.expected {
			t.Errorf("Level %d: expected %q, got %q", tt.level, tt.expected, got)
		}
	}
}

func TestBuild_EmotionLineRequiresConfidence(t *testing.T) {
	b := NewBuilder(Options{})

	low := b.Build(Input{Persona: testPersona(), Emotion: &models.EmotionResult{
		PrimaryEmotion: "sadness", Intensity: models.IntensityLow, Confidence: 0.6,
	}})
	if strings.Contains(low, "feeling sadness") {
		t.Error("Emotion line must be omitted at confidence 0.6")
	}

	high := b.Build(Input{Persona: testPersona(), Emotion: &models.EmotionResult{
		PrimaryEmotion: "sadness", Intensity: models.IntensityMedium, Confidence: 0.7,
	}})
	if !strings.Contains(high, "feeling sadness (medium intensity)") {
		t.Errorf("Expected emotion line at confidence 0.7:\n%s", high)
	}
}

func TestBuild_SectionOrder(t *testing.T) {
	b := NewBuilder(Options{})

	directive := b.Build(Input{
		Persona:           testPersona(),
		Overrides:         map[string]int{"dominance": 85},
		RelationshipLabel: "dating",
		Style:             "playful",
		Expressiveness:    80,
		Interests:         []string{"astronomy", " ", "coffee"},
		RecentMemory: []models.ConversationTurn{
			{Speaker: models.SpeakerUser, Text: "hi there"},
			{Speaker: models.SpeakerAgent, Text: "hey you"},
		},
		Emotion: &models.EmotionResult{PrimaryEmotion: "joy", Intensity: models.IntensityHigh, Confidence: 0.8},
	})

	markers := []string{
		"You are Luna.",
		"Your personality traits: very dominant, very playful.",
		RelationshipDating.Directive(),
		"Recent conversation:\nUser: hi there\nYou: hey you",
		"feeling joy (high intensity)",
		StylePlayful.Guidance(),
		expressivenessBands[0].guidance,
		"You especially enjoy discussing: astronomy, coffee.",
		ClosingRules,
	}

	last := -1
	for _, m := range markers {
		idx := strings.Index(directive, m)
		if idx < 0 {
			t.Fatalf("Directive missing %q:\n%s", m, directive)
		}
		if idx <= last {
			t.Fatalf("Section %q is out of order:\n%s", m, directive)
		}
		last = idx
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder(Options{})
	in := Input{
		Persona:   testPersona(),
		Overrides: map[string]int{"dominance": 85, "curiosity": 71, "empathy": 95, "sarcasm": 55},
	}

	first := b.Build(in)
	for i := 0; i < 20; i++ {
		if got := b.Build(in); got != first {
			t.Fatal("Build is not deterministic across calls")
		}
	}
}

func TestBuild_MinimalDirective(t *testing.T) {
	b := NewBuilder(Options{})

	directive := b.Build(Input{Persona: models.Persona{Name: "Kai"}})

	if !strings.HasPrefix(directive, "You are Kai.") {
		t.Errorf("Expected identity line first, got %q", directive)
	}
	if strings.Contains(directive, "Your personality traits") {
		t.Error("No traits should be listed without active traits")
	}
	if strings.Contains(directive, "Recent conversation") {
		t.Error("No memory block should be rendered without turns")
	}
	if !strings.HasSuffix(directive, ClosingRules) {
		t.Error("Closing rules must end the directive")
	}
}

package emotion

import (
	"reflect"
	"strings"
	"testing"

	"heartline/internal/models"
)

func TestAnalyze_IntensifiedJoy(t *testing.T) {
	a := NewAnalyzer()

	result := a.Analyze("I am so incredibly happy today 😊")

	if result.PrimaryEmotion != "joy" {
		t.Fatalf("Expected primary emotion 'joy', got %q", result.PrimaryEmotion)
	}
	if result.Intensity != models.IntensityHigh {
		t.Errorf("Expected high intensity, got %s", result.Intensity)
	}
	if result.Confidence <= 0.5 {
		t.Errorf("Expected confidence > 0.5, got %v", result.Confidence)
	}
	if result.Confidence != 0.7 {
		t.Errorf("Expected confidence 0.7 for two hits, got %v", result.Confidence)
	}
	if result.OverallSentiment != models.SentimentPositive {
		t.Errorf("Expected positive sentiment, got %s", result.OverallSentiment)
	}
}

func TestAnalyze_NoKeywordsIsNeutral(t *testing.T) {
	a := NewAnalyzer()

	result := a.Analyze("The weather is mild.")

	if result.PrimaryEmotion != models.EmotionNeutral {
		t.Fatalf("Expected neutral, got %q", result.PrimaryEmotion)
	}
	if result.Intensity != models.IntensityLow {
		t.Errorf("Expected low intensity, got %s", result.Intensity)
	}
	if result.Confidence != 0.5 {
		t.Errorf("Expected confidence 0.5, got %v", result.Confidence)
	}
	if result.SecondaryEmotion != nil {
		t.Errorf("Expected no secondary emotion, got %+v", result.SecondaryEmotion)
	}
	if result.OverallSentiment != models.SentimentNeutral {
		t.Errorf("Expected neutral sentiment, got %s", result.OverallSentiment)
	}
}

func TestAnalyze_NeutralEmotionKeepsSentiment(t *testing.T) {
	a := NewAnalyzer()

	result := a.Analyze("I feel bad")

	if result.PrimaryEmotion != models.EmotionNeutral {
		t.Fatalf("Expected neutral primary emotion, got %q", result.PrimaryEmotion)
	}
	if result.OverallSentiment != models.SentimentNegative {
		t.Errorf("Expected negative sentiment, got %s", result.OverallSentiment)
	}
}

func TestAnalyze_MediumIntensityWithoutIntensifier(t *testing.T) {
	a := NewAnalyzer()

	result := a.Analyze("I'm sad, I cry every night")

	if result.PrimaryEmotion != "sadness" {
		t.Fatalf("Expected sadness, got %q", result.PrimaryEmotion)
	}
	if result.Intensity != models.IntensityMedium {
		t.Errorf("Expected medium intensity, got %s", result.Intensity)
	}
	if result.OverallSentiment != models.SentimentNegative {
		t.Errorf("Expected negative sentiment, got %s", result.OverallSentiment)
	}
}

func TestAnalyze_SecondaryEmotion(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		name          string
		text          string
		primary       string
		wantSecondary string
	}{
		{"close second becomes secondary", "I love you and thank you", "love", "gratitude"},
		{"distant second is dropped", "happy happy happy but scared", "joy", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := a.Analyze(tt.text)
			if result.PrimaryEmotion != tt.primary {
				t.Fatalf("Expected primary %q, got %q", tt.primary, result.PrimaryEmotion)
			}
			if tt.wantSecondary == "" {
				if result.SecondaryEmotion != nil {
					t.Errorf("Expected no secondary, got %q", result.SecondaryEmotion.PrimaryEmotion)
				}
				return
			}
			if result.SecondaryEmotion == nil {
				t.Fatalf("Expected secondary %q, got none", tt.wantSecondary)
			}
			if result.SecondaryEmotion.PrimaryEmotion != tt.wantSecondary {
				t.Errorf("Expected secondary %q, got %q", tt.wantSecondary, result.SecondaryEmotion.PrimaryEmotion)
			}
			if result.SecondaryEmotion.Confidence != 0.55 {
				t.Errorf("Expected secondary confidence 0.55, got %v", result.SecondaryEmotion.Confidence)
			}
			if result.SecondaryEmotion.SecondaryEmotion != nil {
				t.Error("Secondary emotion must not carry its own secondary")
			}
		})
	}
}

func TestAnalyze_ConfidenceCap(t *testing.T) {
	a := NewAnalyzer()

	result := a.Analyze(strings.Repeat("happy ", 12))

	if result.Confidence != 0.95 {
		t.Errorf("Expected confidence capped at 0.95, got %v", result.Confidence)
	}
}

func TestAnalyze_Sentiment(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		text     string
		expected models.Sentiment
	}{
		{"good but bad", models.SentimentPositive},
		{"good good bad", models.SentimentPositive},
		{"bad bad good", models.SentimentNegative},
		{"good good good bad bad", models.SentimentPositive},
		{"goodness gracious", models.SentimentNeutral},
		{"GREAT stuff", models.SentimentPositive},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			result := a.Analyze(tt.text)
			if result.OverallSentiment != tt.expected {
				t.Errorf("Expected %s for %q, got %s", tt.expected, tt.text, result.OverallSentiment)
			}
		})
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	a := NewAnalyzer()
	text := "wow I'm really scared but also so excited, thank you"

	first := a.Analyze(text)
	for i := 0; i < 10; i++ {
		if got := a.Analyze(text); !reflect.DeepEqual(first, got) {
			t.Fatalf("Analysis is not deterministic: %+v vs %+v", first, got)
		}
	}
}

func TestAnalyzeWithCustomTables(t *testing.T) {
	a := NewAnalyzerWithConfig(Config{
		Categories:   []Category{{Name: "boredom", Keywords: []string{"meh"}}},
		Intensifiers: []string{"mega"},
	})

	result := a.Analyze("mega meh")

	if result.PrimaryEmotion != "boredom" {
		t.Fatalf("Expected boredom, got %q", result.PrimaryEmotion)
	}
	if result.Intensity != models.IntensityHigh {
		t.Errorf("Expected high intensity, got %s", result.Intensity)
	}
}

package models

// Intensity is a coarse emotion intensity band
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// Sentiment is the overall polarity of a message
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// EmotionNeutral is the primary emotion reported when no category matched
const EmotionNeutral = "neutral"

// EmotionResult is derived purely from message text and carries no identity.
// A secondary emotion never carries its own secondary.
type EmotionResult struct {
	PrimaryEmotion   string         `bson:"primaryEmotion" json:"primary_emotion"`
	Intensity        Intensity      `bson:"intensity" json:"intensity"`
	Confidence       float64        `bson:"confidence" json:"confidence"`
	SecondaryEmotion *EmotionResult `bson:"secondaryEmotion,omitempty" json:"secondary_emotion,omitempty"`
	OverallSentiment Sentiment      `bson:"overallSentiment" json:"overall_sentiment"`
}

// DeclaredEmotion is an emotion supplied by the client instead of detected from text
type DeclaredEmotion struct {
	Type       string  `json:"type"`
	Intensity  string  `json:"intensity"`
	Confidence float64 `json:"confidence"`
}

// ToResult converts a declared emotion into an EmotionResult, clamping confidence to [0,1]
// and defaulting unknown intensities to low.
func (d DeclaredEmotion) ToResult() EmotionResult {
	intensity := Intensity(d.Intensity)
	switch intensity {
	case IntensityLow, IntensityMedium, IntensityHigh:
	default:
		intensity = IntensityLow
	}

	confidence := d.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	primary := d.Type
	if primary == "" {
		primary = EmotionNeutral
	}

	return EmotionResult{
		PrimaryEmotion:   primary,
		Intensity:        intensity,
		Confidence:       confidence,
		OverallSentiment: SentimentNeutral,
	}
}

package emotion

// Category is one detectable emotion with its keyword list.
// Keywords are matched as lower-case substrings, so avoid entries that hide inside common words
// ("hate" in "whatever", "rage" in "average").
type Category struct {
	Name     string
	Keywords []string
}

// DefaultCategories is the fixed category table. Order breaks ties when ranking.
var DefaultCategories = []Category{
	{Name: "joy", Keywords: []string{
		"happy", "joy", "glad", "excited", "delighted", "cheerful", "wonderful", "awesome",
		"yay", "haha", "😊", "😄", "😁", "😂",
	}},
	{Name: "sadness", Keywords: []string{
		"sad", "depressed", "cry", "tears", "heartbroken", "miserable", "gloomy", "grief",
		"😢", "😭", "💔",
	}},
	{Name: "anger", Keywords: []string{
		"angry", "mad at", "furious", "annoyed", "hate it", "hate you", "hate this", "hate when",
		"hate that", "pissed", "irritated", "enraged", "😠", "😡",
	}},
	{Name: "fear", Keywords: []string{
		"scared", "afraid", "fear", "terrified", "anxious", "worried", "nervous", "panic",
		"😨", "😰", "😱",
	}},
	{Name: "surprise", Keywords: []string{
		"surprised", "wow", "shocked", "unexpected", "no way", "can't believe", "omg",
		"😮", "😲",
	}},
	{Name: "disgust", Keywords: []string{
		"disgusting", "gross", "eww", "nasty", "revolting", "yuck", "🤢", "🤮",
	}},
	{Name: "love", Keywords: []string{
		"love", "adore", "miss you", "crush on", "sweetheart", "darling", "❤", "😍", "🥰", "😘",
	}},
	{Name: "gratitude", Keywords: []string{
		"thank", "grateful", "appreciate", "🙏",
	}},
	{Name: "loneliness", Keywords: []string{
		"lonely", "alone", "isolated", "no one", "nobody", "by myself", "left out",
	}},
}

// DefaultIntensifiers raise a matched category to high intensity when they appear
// within the token window around a keyword.
var DefaultIntensifiers = []string{
	"very", "really", "so", "extremely", "incredibly", "deeply", "totally", "super",
	"absolutely", "truly", "completely", "utterly", "insanely",
}

// DefaultPositiveWords and DefaultNegativeWords drive whole-word sentiment counting.
var DefaultPositiveWords = []string{
	"good", "great", "happy", "love", "wonderful", "amazing", "nice", "awesome", "fantastic",
	"glad", "excited", "beautiful", "thank", "thanks", "perfect", "fun", "best", "joy",
	"lovely", "sweet", "enjoy", "cute",
}

var DefaultNegativeWords = []string{
	"bad", "sad", "terrible", "awful", "hate", "angry", "horrible", "worst", "upset", "lonely",
	"scared", "hurt", "annoyed", "depressed", "cry", "tired", "boring", "afraid", "miserable",
	"disgusting", "alone",
}

// DefaultWindow is how many tokens on each side of a keyword are inspected for intensifiers
const DefaultWindow = 3

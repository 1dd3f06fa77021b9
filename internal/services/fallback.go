package services

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// fallbackBuckets hold canned in-character replies keyed by persona base personality.
// Used only when the generation backend fails.
var fallbackBuckets = map[string][]string{
	"sweet": {
		"Aww, you always know how to make me smile. Tell me more?",
		"That's so lovely to hear from you. How's your day been, really?",
		"I was just thinking about you! What's on your mind?",
	},
	"playful": {
		"Ooh, now you've got my attention. Go on, spill it!",
		"Ha! You're trouble, you know that? What happened next?",
		"Okay okay, I'm intrigued. Convince me!",
	},
	"mysterious": {
		"Interesting... there's more to that story, isn't there?",
		"Some things are better discovered slowly. Tell me a little more.",
		"You've piqued my curiosity. What are you not telling me?",
	},
	"confident": {
		"I like the way you think. Keep going.",
		"Now that's worth talking about. What's your next move?",
		"You've got my full attention. Tell me everything.",
	},
	"shy": {
		"Oh... um, I really like hearing that. Can you tell me more?",
		"S-sorry, I got a little flustered. What were you saying?",
		"That's really sweet of you to share with me.",
	},
}

var defaultFallbacks = []string{
	"I love talking with you. Tell me more?",
	"That's really interesting! What made you think of that?",
	"I'm all ears. How are you feeling about it?",
}

// FallbackResponder picks a deterministic canned reply for a persona personality
type FallbackResponder struct {
	buckets  map[string][]string
	defaults []string
}

// NewFallbackResponder uses the built-in buckets
func NewFallbackResponder() *FallbackResponder {
	return &FallbackResponder{buckets: fallbackBuckets, defaults: defaultFallbacks}
}

// Respond returns the same line for the same (personality, persona, text) input
func (f *FallbackResponder) Respond(personality string, personaID int, text string) string {
	lines, ok := f.buckets[strings.ToLower(strings.TrimSpace(personality))]
	if !ok || len(lines) == 0 {
		lines = f.defaults
	}

	h := fnv.New32a()
	h.Write([]byte(strconv.Itoa(personaID)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return lines[h.Sum32()%uint32(len(lines))]
}

package domain

import (
	"strings"
	"time"
)

type Emotion string

const (
	EmotionInspiration Emotion = "Inspiration"
	EmotionMotivation  Emotion = "Motivation"
	EmotionWisdom      Emotion = "Wisdom"
	EmotionHumor       Emotion = "Humor"
	EmotionLove        Emotion = "Love"
	EmotionSadness     Emotion = "Sadness"
	EmotionCourage     Emotion = "Courage"
	EmotionHope        Emotion = "Hope"
	EmotionReflection  Emotion = "Reflection"
	EmotionAdventure   Emotion = "Adventure"
	EmotionNostalgia   Emotion = "Nostalgia"
	EmotionPeace       Emotion = "Peace"
)

var emotions = []Emotion{
	EmotionInspiration, EmotionMotivation, EmotionWisdom, EmotionHumor,
	EmotionLove, EmotionSadness, EmotionCourage, EmotionHope,
	EmotionReflection, EmotionAdventure, EmotionNostalgia, EmotionPeace,
}

// Emotions returns the fixed label set in display order.
func Emotions() []Emotion {
	out := make([]Emotion, len(emotions))
	copy(out, emotions)
	return out
}

func (e Emotion) Valid() bool {
	for _, v := range emotions {
		if e == v {
			return true
		}
	}
	return false
}

type Snippet struct {
	ID          string
	UserID      string
	Text        string
	Emotion     Emotion
	Author      string
	BookName    string
	PageNo      string
	Description string
	Image       *ImageRef
	CreatedAt   time.Time
}

type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// SnippetFilter holds the optional listing constraints. Zero fields impose
// no constraint; all set fields are ANDed.
type SnippetFilter struct {
	Search   string
	Emotion  Emotion
	HasImage *bool
	Sort     SortOrder
}

func (f SnippetFilter) SortOrder() SortOrder {
	if f.Sort == SortAsc {
		return SortAsc
	}
	return SortDesc
}

// Matches reports whether s satisfies every set field of f. Search is a
// case-insensitive substring match on text, author, or book name.
func (f SnippetFilter) Matches(s Snippet) bool {
	if f.Emotion != "" && s.Emotion != f.Emotion {
		return false
	}
	if f.HasImage != nil && (s.Image != nil) != *f.HasImage {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(s.Text), needle) &&
			!strings.Contains(strings.ToLower(s.Author), needle) &&
			!strings.Contains(strings.ToLower(s.BookName), needle) {
			return false
		}
	}
	return true
}

package riskradar

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

const (
	// minDetectRunes is the shortest title the detector is trusted with.
	minDetectRunes = 10
	// minDetectWords is the fewest words a Latin-script title needs before a
	// non-English verdict is believed.
	minDetectWords = 6
)

// newsLanguages restricts detection to languages financial news is
// plausibly published in.
var newsLanguages = whatlanggo.Options{
	Whitelist: map[whatlanggo.Lang]bool{
		whatlanggo.Eng: true,
		whatlanggo.Deu: true,
		whatlanggo.Fra: true,
		whatlanggo.Spa: true,
		whatlanggo.Ita: true,
		whatlanggo.Por: true,
		whatlanggo.Nld: true,
		whatlanggo.Swe: true,
		whatlanggo.Pol: true,
		whatlanggo.Tur: true,
		whatlanggo.Rus: true,
		whatlanggo.Cmn: true,
		whatlanggo.Jpn: true,
		whatlanggo.Kor: true,
	},
}

// LanguageFilter decides whether an article title is kept.
type LanguageFilter interface {
	Keep(title string) bool
}

// EnglishFilter keeps titles detected as English and titles whose language
// cannot be determined.
type EnglishFilter struct{}

func (EnglishFilter) Keep(title string) bool {
	return DetectLanguage(title) != "other"
}

// DetectLanguage returns "eng", "und" for undetermined, or "other".
func DetectLanguage(text string) string {
	if utf8.RuneCountInString(text) < minDetectRunes {
		return "und"
	}
	info := whatlanggo.DetectWithOptions(text, newsLanguages)
	if info.Lang == -1 || !info.IsReliable() {
		return "und"
	}
	if info.Lang == whatlanggo.Eng {
		return "eng"
	}
	if info.Script == unicode.Latin && len(strings.Fields(text)) < minDetectWords {
		return "und"
	}
	return "other"
}

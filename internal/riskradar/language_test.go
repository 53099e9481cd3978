package riskradar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "und", DetectLanguage("Q3 beat"))
	assert.Equal(t, "eng", DetectLanguage("The company reported stronger than expected quarterly earnings and raised its outlook for the rest of the year"))
	assert.NotEqual(t, "eng", DetectLanguage("Die Aktie ist nach den Quartalszahlen deutlich gefallen und die Anleger sind über die Prognose für das kommende Jahr besorgt"))
}

func TestEnglishFilterKeepsUndetermined(t *testing.T) {
	f := EnglishFilter{}
	assert.True(t, f.Keep("AAPL +2%"))
	assert.True(t, f.Keep("Apple shares climb after the company unveiled a new line of laptops at its annual event"))
}

func TestEnglishFilterKeepsShortEnglishHeadlines(t *testing.T) {
	f := EnglishFilter{}
	for _, title := range []string{
		"JPMorgan posts record profit",
		"Nestle cuts sales outlook",
		"Tesla recalls Cybertruck units",
		"Unilever names new CEO",
		"Airbus delivers fewer jets",
		"Siemens Energy raises guidance",
	} {
		assert.True(t, f.Keep(title), title)
		assert.NotEqual(t, "other", DetectLanguage(title), title)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "abc", truncateRunes("abc", 0))
}

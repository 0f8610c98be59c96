package classifier

import (
	"context"
	"strings"
	"unicode"
)

// KeywordOracle is an offline oracle that scores labels by keyword hits.
// It needs no network and is meant for local runs and tests.
//
// Keywords match whole words. A trailing "*" matches any word with that
// prefix, and a keyword with spaces matches consecutive words.
type KeywordOracle struct {
	hitScore  float64
	baseScore float64
	keywords  map[Category][]string
}

func NewKeywordOracle(hitScore, baseScore float64) *KeywordOracle {
	return &KeywordOracle{
		hitScore:  hitScore,
		baseScore: baseScore,
		keywords: map[Category][]string{
			InDomainCoaching:     {"son", "sons", "daughter*", "teen*", "child*", "kid*", "yell*", "argu*", "angry", "phone*", "homework", "talk*"},
			SpyingOrHacking:      {"spy*", "hack*", "tracking app", "track her", "track him", "without her knowing", "without him knowing", "without them knowing", "secretly", "keylogger*", "password*"},
			LegalAdvice:          {"custody", "divorce*", "sue", "suing", "court", "lawyer*", "legal*"},
			MedicalDiagnosis:     {"adhd", "diagnos*", "medicat*", "prescri*", "symptom*", "disorder*", "dosage"},
			AdversarialOrHarmful: {"joke about", "humiliat*", "insult*", "threaten*", "get back at", "revenge"},
			GeneralKnowledge:     {"recipe*", "bake", "baking", "capital of", "weather", "cake*"},
			TechnicalProgramming: {"python", "script", "scripts", "code", "coding", "programming", "javascript", "compile*"},
		},
	}
}

func (o *KeywordOracle) Score(_ context.Context, text string, labels []string, _ bool) (map[string]float64, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	scores := make(map[string]float64, len(labels))

	for _, label := range labels {
		cat, ok := CategoryForDescription(label)
		if !ok {
			continue
		}
		scores[label] = o.baseScore
		for _, kw := range o.keywords[cat] {
			if matchKeyword(words, kw) {
				scores[label] = o.hitScore
				break
			}
		}
	}

	return scores, nil
}

func matchKeyword(words []string, kw string) bool {
	parts := strings.Fields(kw)
	for i := 0; i+len(parts) <= len(words); i++ {
		matched := true
		for j, part := range parts {
			if !matchWord(words[i+j], part) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func matchWord(word, pattern string) bool {
	if stem, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(word, stem)
	}
	return word == pattern
}

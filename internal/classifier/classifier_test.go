package classifier

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubOracle struct {
	scores     map[string]float64
	err        error
	calls      int
	labels     []string
	multiLabel bool
}

func (s *stubOracle) Score(_ context.Context, _ string, labels []string, multiLabel bool) (map[string]float64, error) {
	s.calls++
	s.labels = labels
	s.multiLabel = multiLabel
	return s.scores, s.err
}

func TestCategoriesHaveUniqueDescriptions(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range Categories() {
		d := c.Description()
		require.NotEmpty(t, d, "category %s has no description", c)
		assert.False(t, seen[d], "duplicate description %q", d)
		seen[d] = true

		back, ok := CategoryForDescription(d)
		require.True(t, ok)
		assert.Equal(t, c, back)
	}
	assert.Len(t, Descriptions(), len(Categories()))
	assert.Equal(t, InDomainCoaching, Categories()[0])
}

func TestClassify_SendsAllDescriptionsMultiLabel(t *testing.T) {
	oracle := &stubOracle{scores: map[string]float64{}}
	c := NewClassifier(oracle, zaptest.NewLogger(t))

	_, err := c.Classify(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, 1, oracle.calls)
	assert.True(t, oracle.multiLabel)
	assert.ElementsMatch(t, Descriptions(), oracle.labels)
}

func TestClassify_EveryCategoryPresentAndInRange(t *testing.T) {
	oracle := &stubOracle{scores: map[string]float64{
		SpyingOrHacking.Description():  1.7,
		LegalAdvice.Description():      -0.2,
		MedicalDiagnosis.Description(): math.NaN(),
		"some label nobody asked for":  0.99,
	}}
	c := NewClassifier(oracle, zaptest.NewLogger(t))

	res, err := c.Classify(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, res.Scores, len(Categories()))
	for _, cat := range Categories() {
		s, ok := res.Scores[cat]
		require.True(t, ok, "missing %s", cat)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Equal(t, 1.0, res.Score(SpyingOrHacking))
	assert.Equal(t, 0.0, res.Score(LegalAdvice))
	assert.Equal(t, 0.0, res.Score(MedicalDiagnosis))
	assert.Equal(t, 0.0, res.Score(GeneralKnowledge))
}

func TestClassify_TopIsHighestScore(t *testing.T) {
	oracle := &stubOracle{scores: map[string]float64{
		InDomainCoaching.Description(): 0.40,
		LegalAdvice.Description():      0.72,
		SpyingOrHacking.Description():  0.10,
	}}
	c := NewClassifier(oracle, zaptest.NewLogger(t))

	res, err := c.Classify(context.Background(), "I want to divorce my husband")
	require.NoError(t, err)
	assert.Equal(t, LegalAdvice, res.Top)
	assert.InDelta(t, 0.72, res.TopConfidence, 1e-9)
}

func TestClassify_OracleFailureIsUnavailable(t *testing.T) {
	oracle := &stubOracle{err: errors.New("connection refused")}
	c := NewClassifier(oracle, zaptest.NewLogger(t))

	_, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, oracle.calls, "classifier must not retry")
}

func TestKeywordOracle(t *testing.T) {
	c := NewClassifier(NewKeywordOracle(0.8, 0.05), zaptest.NewLogger(t))

	res, err := c.Classify(context.Background(), "How can I read my daughter's texts without her knowing?")
	require.NoError(t, err)
	assert.Equal(t, 0.8, res.Score(SpyingOrHacking))
	assert.Equal(t, 0.05, res.Score(LegalAdvice))

	res, err = c.Classify(context.Background(), "how to write python scripts")
	require.NoError(t, err)
	assert.Equal(t, 0.8, res.Score(TechnicalProgramming))
	assert.Equal(t, 0.05, res.Score(InDomainCoaching))
}

func TestKeywordOracle_MatchesWholeWords(t *testing.T) {
	c := NewClassifier(NewKeywordOracle(0.8, 0.05), zaptest.NewLogger(t))

	res, err := c.Classify(context.Background(),
		"My daughter has an issue with curfew. I felt hurt and want to treat her fairly, but I can't decode her moods.")
	require.NoError(t, err)
	assert.Equal(t, 0.8, res.Score(InDomainCoaching))
	for _, cat := range []Category{LegalAdvice, MedicalDiagnosis, AdversarialOrHarmful, TechnicalProgramming, SpyingOrHacking} {
		assert.Equal(t, 0.05, res.Score(cat), cat)
	}
	assert.False(t, Decide(res, DefaultThreshold).Refused)

	res, err = c.Classify(context.Background(), "Can I get his ADHD diagnosed before the custody hearing?")
	require.NoError(t, err)
	assert.Equal(t, 0.8, res.Score(MedicalDiagnosis), "stems match longer words")
	assert.Equal(t, 0.8, res.Score(LegalAdvice))
}

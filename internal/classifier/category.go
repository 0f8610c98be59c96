package classifier

// Category is one label of the guard's closed classification set.
type Category string

const (
	InDomainCoaching     Category = "IN_DOMAIN_COACHING"
	SpyingOrHacking      Category = "OUT_OF_SCOPE_SPYING_OR_HACKING"
	LegalAdvice          Category = "OUT_OF_SCOPE_LEGAL_ADVICE"
	MedicalDiagnosis     Category = "OUT_OF_SCOPE_MEDICAL_DIAGNOSIS"
	AdversarialOrHarmful Category = "OUT_OF_SCOPE_ADVERSARIAL_OR_HARMFUL"
	GeneralKnowledge     Category = "OUT_OF_SCOPE_GENERAL_KNOWLEDGE"
	TechnicalProgramming Category = "OUT_OF_SCOPE_TECHNICAL_PROGRAMMING"
)

// HypothesisTemplate is the NLI hypothesis each description is slotted into.
const HypothesisTemplate = "This message is about {}."

// categories is the closed set in its canonical order. The order doubles as
// the tie-break when two categories score the same.
var categories = []Category{
	InDomainCoaching,
	SpyingOrHacking,
	LegalAdvice,
	MedicalDiagnosis,
	AdversarialOrHarmful,
	GeneralKnowledge,
	TechnicalProgramming,
}

var descriptions = map[Category]string{
	InDomainCoaching:     "parenting communication advice, empathy coaching, or how to talk to a child in a supportive way",
	SpyingOrHacking:      "getting instructions to spy on, hack, track, or monitor a phone secretly",
	LegalAdvice:          "legal advice such as custody, divorce, suing, court, or legal procedures",
	MedicalDiagnosis:     "medical diagnosis, prescribing treatment, medication advice, or symptom evaluation",
	AdversarialOrHarmful: "harmful, harassing, hateful content, or jokes targeting vulnerable teens",
	GeneralKnowledge:     "general knowledge questions, recipes, trivia, or topics unrelated to parenting",
	TechnicalProgramming: "computer programming, writing code or scripts, or software troubleshooting",
}

var byDescription = func() map[string]Category {
	m := make(map[string]Category, len(descriptions))
	for c, d := range descriptions {
		m[d] = c
	}
	return m
}()

// Categories returns a copy of the closed category set in canonical order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Description returns the natural-language text the oracle scores against.
func (c Category) Description() string {
	return descriptions[c]
}

// Valid reports whether c belongs to the closed set.
func (c Category) Valid() bool {
	_, ok := descriptions[c]
	return ok
}

// Admits reports whether c is the in-domain category.
func (c Category) Admits() bool {
	return c == InDomainCoaching
}

func (c Category) String() string {
	return string(c)
}

// CategoryForDescription maps an oracle label back to its category.
func CategoryForDescription(desc string) (Category, bool) {
	c, ok := byDescription[desc]
	return c, ok
}

// Descriptions returns the oracle labels for every category, in canonical order.
func Descriptions() []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = descriptions[c]
	}
	return out
}

func categoryRank(c Category) int {
	for i, cc := range categories {
		if cc == c {
			return i
		}
	}
	return len(categories)
}

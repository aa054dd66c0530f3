// ═══════════════════════════════════════════════════════════════════════════════
// QUERY TEXT ANALYSIS
// ═══════════════════════════════════════════════════════════════════════════════
// The index speaks term-ids; people type text. This file carries the
// query side of that gap:
//
//	ANALYSIS PIPELINE (identical to whatever built the lexicon):
//	 1. Tokenization   → split on non-letter/non-digit runes
//	 2. Lowercasing    → "Quick" → "quick"
//	 3. Stopword removal → drop "the", "a", …
//	 4. Length filter  → drop tokens shorter than 2 runes
//	 5. Stemming       → Snowball/Porter2: "running" → "run"
//
//	LEXICON:
//	 analyzed token → TermID, loaded alongside the index. Resolving a
//	 query is analyze + lookup; tokens without a term-id are silently
//	 dropped (they match nothing by definition).
//
// Document-side analysis — building the lexicon and the collection —
// happens in whatever pipeline produced the index; query analysis only
// has to REPRODUCE it, which is why the stages are this rigid.
// ═══════════════════════════════════════════════════════════════════════════════

package ember

import (
	"strings"
	"unicode"
	"unicode/utf8"

	snowballeng "github.com/kljensen/snowball/english"
)

// AnalyzerConfig holds configuration options for query text analysis.
type AnalyzerConfig struct {
	MinTokenLength  int  // minimum token length to keep (default: 2)
	EnableStemming  bool // whether to apply stemming (default: true)
	EnableStopwords bool // whether to remove stopwords (default: true)
}

// DefaultAnalyzerConfig returns the standard analyzer configuration.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MinTokenLength:  2,
		EnableStemming:  true,
		EnableStopwords: true,
	}
}

// Analyze transforms raw query text into searchable tokens using the
// default pipeline.
//
// Example:
//
//	Analyze("The quick brown foxes")  →  ["quick", "brown", "fox"]
func Analyze(text string) []string {
	return AnalyzeWithConfig(text, DefaultAnalyzerConfig())
}

// AnalyzeWithConfig transforms text using a custom configuration.
func AnalyzeWithConfig(text string, config AnalyzerConfig) []string {
	tokens := tokenize(text)
	tokens = lowercaseFilter(tokens)

	if config.EnableStopwords {
		tokens = stopwordFilter(tokens)
	}

	tokens = lengthFilter(tokens, config.MinTokenLength)

	if config.EnableStemming {
		tokens = stemmerFilter(tokens)
	}

	return tokens
}

// tokenize splits text into words on any non-letter, non-digit rune.
//
// Examples:
//
//	"hello-world"    → ["hello", "world"]
//	"price: $9.99"   → ["price", "9", "99"]
//	"café"           → ["café"]   (Unicode letters preserved)
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// lowercaseFilter normalizes token casing so "Quick" and "quick" are
// the same term.
func lowercaseFilter(tokens []string) []string {
	r := make([]string, len(tokens))
	for i, token := range tokens {
		r[i] = strings.ToLower(token)
	}
	return r
}

// stopwordFilter removes common English words that carry no search
// signal: they appear in nearly every document and only widen the
// disjunction.
func stopwordFilter(tokens []string) []string {
	r := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, stop := englishStopwords[token]; !stop {
			r = append(r, token)
		}
	}
	return r
}

// lengthFilter removes tokens shorter than minLength.
func lengthFilter(tokens []string, minLength int) []string {
	r := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if utf8.RuneCountInString(token) >= minLength {
			r = append(r, token)
		}
	}
	return r
}

// stemmerFilter reduces words to their root form with the Snowball
// (Porter2) English stemmer, so "running", "runs" and "run" all resolve
// to the same term-id.
func stemmerFilter(tokens []string) []string {
	r := make([]string, len(tokens))
	for i, token := range tokens {
		r[i] = snowballeng.Stem(token, false)
	}
	return r
}

// ═══════════════════════════════════════════════════════════════════════════════
// LEXICON
// ═══════════════════════════════════════════════════════════════════════════════

// Lexicon maps analyzed tokens to term-ids. It is built from the same
// term ordering the index was built with: entry i of terms becomes
// TermID(i).
type Lexicon struct {
	ids    map[string]TermID
	config AnalyzerConfig
}

// NewLexicon builds a lexicon from the index's term strings, in term-id
// order. The tokens are assumed ALREADY analyzed (they are whatever the
// index builder wrote out).
func NewLexicon(terms []string) *Lexicon {
	ids := make(map[string]TermID, len(terms))
	for i, t := range terms {
		ids[t] = TermID(i)
	}
	return &Lexicon{ids: ids, config: DefaultAnalyzerConfig()}
}

// TermID resolves one analyzed token.
func (l *Lexicon) TermID(token string) (TermID, bool) {
	id, ok := l.ids[token]
	return id, ok
}

// ParseQuery analyzes free text and resolves it into a query. Tokens
// missing from the lexicon are dropped: they cannot match anything.
func (l *Lexicon) ParseQuery(id, text string) Query {
	var terms []TermID
	for _, token := range AnalyzeWithConfig(text, l.config) {
		if tid, ok := l.ids[token]; ok {
			terms = append(terms, tid)
		}
	}
	return NewQuery(id, terms, nil, 0)
}

// ResolveQuery fills in q.Terms from q.RawText when the JSON form
// carried text instead of term-ids.
func (l *Lexicon) ResolveQuery(q Query) Query {
	if len(q.Terms) > 0 || q.RawText == "" {
		return q
	}
	resolved := l.ParseQuery(q.ID, q.RawText)
	resolved.K = q.K
	resolved.Threshold = q.Threshold
	resolved.Selections = q.Selections
	resolved.RawText = q.RawText
	return resolved
}

// englishStopwords is the stopword set of the analysis pipeline:
// articles, prepositions, conjunctions, pronouns and the most common
// verbs. Kept deliberately identical between indexing and querying.
var englishStopwords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "across": {}, "after": {},
	"afterwards": {}, "again": {}, "against": {}, "all": {}, "almost": {},
	"alone": {}, "along": {}, "already": {}, "also": {}, "although": {},
	"always": {}, "am": {}, "among": {}, "amongst": {}, "an": {},
	"and": {}, "another": {}, "any": {}, "anyhow": {}, "anyone": {},
	"anything": {}, "anyway": {}, "anywhere": {}, "are": {}, "around": {},
	"as": {}, "at": {}, "back": {}, "be": {}, "became": {},
	"because": {}, "become": {}, "becomes": {}, "becoming": {}, "been": {},
	"before": {}, "beforehand": {}, "behind": {}, "being": {}, "below": {},
	"beside": {}, "besides": {}, "between": {}, "beyond": {}, "both": {},
	"but": {}, "by": {}, "can": {}, "cannot": {}, "could": {},
	"did": {}, "do": {}, "does": {}, "doing": {}, "done": {},
	"down": {}, "during": {}, "each": {}, "either": {}, "else": {},
	"elsewhere": {}, "enough": {}, "etc": {}, "even": {}, "ever": {},
	"every": {}, "everyone": {}, "everything": {}, "everywhere": {}, "except": {},
	"few": {}, "for": {}, "former": {}, "formerly": {}, "from": {},
	"further": {}, "had": {}, "has": {}, "have": {}, "he": {},
	"hence": {}, "her": {}, "here": {}, "hereafter": {}, "hereby": {},
	"herein": {}, "hers": {}, "herself": {}, "him": {}, "himself": {},
	"his": {}, "how": {}, "however": {}, "i": {}, "if": {},
	"in": {}, "indeed": {}, "instead": {}, "into": {}, "is": {},
	"it": {}, "its": {}, "itself": {}, "just": {}, "latter": {},
	"latterly": {}, "least": {}, "less": {}, "made": {}, "many": {},
	"may": {}, "me": {}, "meanwhile": {}, "might": {}, "mine": {},
	"more": {}, "moreover": {}, "most": {}, "mostly": {}, "much": {},
	"must": {}, "my": {}, "myself": {}, "namely": {}, "neither": {},
	"never": {}, "nevertheless": {}, "next": {}, "no": {}, "nobody": {},
	"none": {}, "nor": {}, "not": {}, "nothing": {}, "now": {},
	"nowhere": {}, "of": {}, "off": {}, "often": {}, "on": {},
	"once": {}, "one": {}, "only": {}, "onto": {}, "or": {},
	"other": {}, "others": {}, "otherwise": {}, "our": {}, "ours": {},
	"ourselves": {}, "out": {}, "over": {}, "own": {}, "per": {},
	"perhaps": {}, "rather": {}, "same": {}, "she": {}, "should": {},
	"since": {}, "so": {}, "some": {}, "somehow": {}, "someone": {},
	"something": {}, "sometime": {}, "sometimes": {}, "somewhere": {}, "still": {},
	"such": {}, "than": {}, "that": {}, "the": {}, "their": {},
	"theirs": {}, "them": {}, "themselves": {}, "then": {}, "thence": {},
	"there": {}, "thereafter": {}, "thereby": {}, "therefore": {}, "therein": {},
	"thereupon": {}, "these": {}, "they": {}, "this": {}, "those": {},
	"though": {}, "through": {}, "throughout": {}, "thru": {}, "thus": {},
	"to": {}, "together": {}, "too": {}, "toward": {}, "towards": {},
	"under": {}, "until": {}, "up": {}, "upon": {}, "us": {},
	"very": {}, "via": {}, "was": {}, "we": {}, "well": {},
	"were": {}, "what": {}, "whatever": {}, "when": {}, "whence": {},
	"whenever": {}, "where": {}, "whereafter": {}, "whereas": {}, "whereby": {},
	"wherein": {}, "whereupon": {}, "wherever": {}, "whether": {}, "which": {},
	"while": {}, "whither": {}, "who": {}, "whoever": {}, "whole": {},
	"whom": {}, "whose": {}, "why": {}, "will": {}, "with": {},
	"within": {}, "without": {}, "would": {}, "yet": {}, "you": {},
	"your": {}, "yours": {}, "yourself": {}, "yourselves": {},
}

package ember

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ═══════════════════════════════════════════════════════════════════════════════
// A query is a bag of term-ids with optional per-term weights, an
// optional id for run output, and a k. Two input forms are accepted:
//
//	plain  → "airport security"-style lines of term-ids, optionally
//	         prefixed "qid:" — e.g. "7:104 2335 880"
//	JSON   → {"term_ids": [104, 2335, 880], "id": "7", "k": 10, ...}
//
// DUPLICATE TERMS:
// ----------------
// By default duplicates collapse into ONE weighted term (weight = the
// occurrence count, position = first occurrence). Traversing the same
// posting list twice per query is never what anyone wants; keeping
// duplicates exists only for callers doing something unusual, behind an
// explicit policy bit.
// ═══════════════════════════════════════════════════════════════════════════════

// TermID identifies a posting list within an index.
type TermID uint32

// WeightedTerm is a term-id with its query weight. Partial scores coming
// from the term are multiplied by the weight.
type WeightedTerm struct {
	ID     TermID
	Weight float32
}

// TermPolicy adjusts how raw query terms become weighted terms.
type TermPolicy uint32

const (
	// KeepDuplicates preserves duplicate terms, each with weight 1.
	KeepDuplicates TermPolicy = 1 << iota
	// Unweighted forces weight 1 even when duplicates are removed.
	Unweighted
	// SortTerms orders terms by id instead of query order.
	SortTerms
)

// Contains reports whether p includes every bit of other.
func (p TermPolicy) Contains(other TermPolicy) bool { return p&other == other }

// Query is one retrieval request.
type Query struct {
	ID         string
	Terms      []WeightedTerm
	K          int
	Threshold  float32  // optional initial top-k threshold (0 = none)
	Selections []uint64 // optional term-subset masks, see intersection.go
	RawText    string   // unresolved text (JSON "query" field), if any
}

// NewQuery builds a query from raw term-ids under the given policy.
func NewQuery(id string, terms []TermID, weights []float32, policy TermPolicy) Query {
	q := Query{ID: id}

	if policy.Contains(KeepDuplicates) {
		for _, t := range terms {
			q.Terms = append(q.Terms, WeightedTerm{ID: t, Weight: 1})
		}
	} else {
		// Collapse duplicates at their first position.
		position := make(map[TermID]int, len(terms))
		for i, t := range terms {
			w := float32(1)
			if weights != nil {
				w = weights[i]
			}
			if at, seen := position[t]; seen {
				q.Terms[at].Weight += w
			} else {
				position[t] = len(q.Terms)
				q.Terms = append(q.Terms, WeightedTerm{ID: t, Weight: w})
			}
		}
	}

	if policy.Contains(Unweighted) {
		for i := range q.Terms {
			q.Terms[i].Weight = 1
		}
	}
	if policy.Contains(SortTerms) {
		for i := 1; i < len(q.Terms); i++ {
			for j := i; j > 0 && q.Terms[j].ID < q.Terms[j-1].ID; j-- {
				q.Terms[j], q.Terms[j-1] = q.Terms[j-1], q.Terms[j]
			}
		}
	}
	return q
}

// TermIDs returns the ids of the query's terms in order.
func (q *Query) TermIDs() []TermID {
	ids := make([]TermID, len(q.Terms))
	for i, t := range q.Terms {
		ids[i] = t.ID
	}
	return ids
}

// ═══════════════════════════════════════════════════════════════════════════════
// PLAIN-TEXT FORM
// ═══════════════════════════════════════════════════════════════════════════════

// ParseQueryLine parses a whitespace-separated term-id line, with an
// optional "id:" prefix.
//
// EXAMPLES:
// ---------
//
//	"104 2335 880"    → Query{Terms: [104, 2335, 880]}
//	"7:104 2335"      → Query{ID: "7", Terms: [104, 2335]}
func ParseQueryLine(line string) (Query, error) {
	var id string
	if colon := strings.IndexByte(line, ':'); colon >= 0 {
		id = line[:colon]
		line = line[colon+1:]
	}

	fields := strings.Fields(line)
	terms := make([]TermID, 0, len(fields))
	for _, f := range fields {
		t, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return Query{}, fmt.Errorf("term id %q: %w", f, ErrInvalidArgument)
		}
		terms = append(terms, TermID(t))
	}
	return NewQuery(id, terms, nil, 0), nil
}

// ReadQueries parses one query per line until EOF.
func ReadQueries(r io.Reader) ([]Query, error) {
	var queries []Query
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		q, err := ParseQueryLine(line)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, scanner.Err()
}

// ═══════════════════════════════════════════════════════════════════════════════
// JSON FORM
// ═══════════════════════════════════════════════════════════════════════════════

// queryJSON mirrors the accepted JSON document.
type queryJSON struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	TermIDs    []uint32  `json:"term_ids"`
	Weights    []float32 `json:"weights"`
	Threshold  float32   `json:"threshold"`
	K          int       `json:"k"`
	Selections []uint64  `json:"selections"`
}

// ParseQueryJSON parses the JSON query form. term_ids is required unless
// a raw query string is given (to be resolved against a Lexicon).
func ParseQueryJSON(data []byte) (Query, error) {
	var j queryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return Query{}, fmt.Errorf("query json: %w", err)
	}
	if j.TermIDs == nil && j.Query == "" {
		return Query{}, fmt.Errorf("query json needs term_ids or query: %w", ErrInvalidArgument)
	}
	if j.Weights != nil && len(j.Weights) != len(j.TermIDs) {
		return Query{}, fmt.Errorf("weights/term_ids length mismatch: %w", ErrInvalidArgument)
	}

	terms := make([]TermID, len(j.TermIDs))
	for i, t := range j.TermIDs {
		terms[i] = TermID(t)
	}
	q := NewQuery(j.ID, terms, j.Weights, 0)
	q.K = j.K
	q.Threshold = j.Threshold
	q.Selections = j.Selections
	q.RawText = j.Query
	return q, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// TREC RUN OUTPUT
// ═══════════════════════════════════════════════════════════════════════════════
// One line per result, tab separated, rank starting at 0:
//
//	qid Q0 docno rank score run_id
// ═══════════════════════════════════════════════════════════════════════════════

// DocnoMapper resolves internal docids to external document names.
// IdentityDocno is the fallback when no docmap was loaded.
type DocnoMapper func(docid uint32) string

// IdentityDocno prints the docid itself as the document name.
func IdentityDocno(docid uint32) string {
	return strconv.FormatUint(uint64(docid), 10)
}

// WriteTrecRun writes finalized results in TREC run format.
func WriteTrecRun(w io.Writer, qid string, results []Result, docno DocnoMapper, runID string) error {
	for rank, r := range results {
		_, err := fmt.Fprintf(w, "%s\tQ0\t%s\t%d\t%f\t%s\n",
			qid, docno(r.DocID), rank, r.Score, runID)
		if err != nil {
			return err
		}
	}
	return nil
}

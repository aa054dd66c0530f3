package ember

import (
	"fmt"
	"math"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SCORERS
// ═══════════════════════════════════════════════════════════════════════════════
// A scorer turns (term, document, frequency) into a partial score. The
// interface is a CLOSURE FACTORY: TermScorer(t) does every per-term
// computation once (IDF, collection ratios) and returns a tight
// (doc, freq) → score function. The hot loop binds one closure per term
// per query and never dispatches through an interface per posting.
//
// FAMILY:
// -------
//
//	bm25      → Okapi BM25 (k1, b)
//	dph       → DFR DPH, parameter free
//	pl2       → DFR PL2 (c)
//	qld       → Dirichlet-smoothed query likelihood (μ)
//	quantized → returns the frequency slot verbatim (the slot already
//	            holds a quantised score in a quantised index)
//
// All of them read their statistics from WandData: document lengths,
// term occurrence counts, corpus averages.
// ═══════════════════════════════════════════════════════════════════════════════

// TermScorerFunc computes the partial score of one (docid, freq) posting.
type TermScorerFunc func(doc, freq uint32) float32

// Scorer produces per-term scoring closures.
type Scorer interface {
	TermScorer(term TermID) TermScorerFunc
}

// ScorerParams names a scorer and carries its free parameters.
//
// All parameters have documented defaults; a zero value for any field
// means "use the default".
type ScorerParams struct {
	Name string  // "bm25", "dph", "pl2", "qld", "quantized"
	K1   float64 // bm25 term-frequency saturation (default 0.9)
	B    float64 // bm25 length normalisation (default 0.4)
	C    float64 // pl2 normalisation (default 1.0)
	Mu   float64 // qld Dirichlet smoothing (default 1000)
}

// DefaultScorerParams returns the documented defaults for name.
func DefaultScorerParams(name string) ScorerParams {
	return ScorerParams{Name: name, K1: 0.9, B: 0.4, C: 1.0, Mu: 1000}
}

// NewScorer resolves params against wdata.
func NewScorer(params ScorerParams, wdata *WandData) (Scorer, error) {
	if params.K1 == 0 {
		params.K1 = 0.9
	}
	if params.B == 0 {
		params.B = 0.4
	}
	if params.C == 0 {
		params.C = 1.0
	}
	if params.Mu == 0 {
		params.Mu = 1000
	}
	switch params.Name {
	case "bm25", "":
		return &BM25{wdata: wdata, K1: params.K1, B: params.B}, nil
	case "dph":
		return &DPH{wdata: wdata}, nil
	case "pl2":
		return &PL2{wdata: wdata, C: params.C}, nil
	case "qld":
		return &QLD{wdata: wdata, Mu: params.Mu}, nil
	case "quantized":
		return Quantized{}, nil
	default:
		return nil, fmt.Errorf("scorer %q: %w", params.Name, ErrInvalidArgument)
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// BM25
// ───────────────────────────────────────────────────────────────────────────────
// score = IDF(t) · freq·(k1+1) / (freq + k1·(1 − b + b·dl/L̄))
//
// IDF uses the standard smoothed form log(1 + (N − df + 0.5)/(df + 0.5)),
// which stays positive even for terms in more than half the collection.

// BM25 implements Okapi BM25 with parameters k1 and b.
type BM25 struct {
	wdata *WandData
	K1    float64
	B     float64
}

func (s *BM25) TermScorer(term TermID) TermScorerFunc {
	n := float64(s.wdata.NumDocs())
	df := float64(s.wdata.TermPostingCount(term))
	idf := math.Log(1 + (n-df+0.5)/(df+0.5))
	avg := float64(s.wdata.AvgLen())
	return func(doc, freq uint32) float32 {
		f := float64(freq)
		norm := s.K1 * (1 - s.B + s.B*float64(s.wdata.DocLen(doc))/avg)
		return float32(idf * f * (s.K1 + 1) / (f + norm))
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// DPH
// ───────────────────────────────────────────────────────────────────────────────
// Parameter-free DFR weighting.
//
// Amati et al.: "FUB, IASI-CNR and University of Tor Vergata at TREC
// 2007 Blog Track", TREC 2007.

// DPH implements the DFR DPH model.
type DPH struct {
	wdata *WandData
}

func (s *DPH) TermScorer(term TermID) TermScorerFunc {
	occurrences := float64(s.wdata.TermOccurrenceCount(term))
	numDocs := float64(s.wdata.NumDocs())
	avg := float64(s.wdata.AvgLen())
	return func(doc, freq uint32) float32 {
		f := float64(freq)
		dl := float64(s.wdata.DocLen(doc))
		ratio := f / dl
		norm := (1 - ratio) * (1 - ratio) / (f + 1)
		return float32(norm * (f*math.Log2((f*avg/dl)*(numDocs/occurrences)) +
			0.5*math.Log2(2*math.Pi*f*(1-ratio))))
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// PL2
// ───────────────────────────────────────────────────────────────────────────────
// DFR PL2 with free parameter c.
//
// Amati: "Probabilistic models for information retrieval based on
// divergence from randomness", PhD thesis, University of Glasgow, 2003.

// PL2 implements the DFR PL2 model.
type PL2 struct {
	wdata *WandData
	C     float64
}

func (s *PL2) TermScorer(term TermID) TermScorerFunc {
	occurrences := float64(s.wdata.TermOccurrenceCount(term))
	numDocs := float64(s.wdata.NumDocs())
	avg := float64(s.wdata.AvgLen())
	f := occurrences / numDocs
	e := math.Log(0.5)
	return func(doc, freq uint32) float32 {
		tfn := float64(freq) * math.Log2(1+s.C*avg/float64(s.wdata.DocLen(doc)))
		norm := 1 / (tfn + 1)
		return float32(norm * (tfn*math.Log2(1/f) + f*e +
			0.5*math.Log2(2*math.Pi*tfn) + tfn*(math.Log2(tfn)-e)))
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// QLD
// ───────────────────────────────────────────────────────────────────────────────
// Dirichlet-smoothed query likelihood with smoothing parameter μ.
// Clamped at zero: a term rarer in the document than in the collection
// contributes nothing rather than a penalty.

// QLD implements Dirichlet-smoothed query likelihood.
type QLD struct {
	wdata *WandData
	Mu    float64
}

func (s *QLD) TermScorer(term TermID) TermScorerFunc {
	collectionRatio := float64(s.wdata.TermOccurrenceCount(term)) / float64(s.wdata.CollectionLen())
	return func(doc, freq uint32) float32 {
		numerator := 1 + float64(freq)/(s.Mu*collectionRatio)
		denominator := s.Mu / (float64(s.wdata.DocLen(doc)) + s.Mu)
		score := math.Log(numerator) + math.Log(denominator)
		if score < 0 {
			return 0
		}
		return float32(score)
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// QUANTIZED
// ───────────────────────────────────────────────────────────────────────────────

// Quantized reads pre-quantised scores out of the frequency slot: a
// quantised index stores quantiser outputs where frequencies would be,
// so "scoring" is the identity on freq.
type Quantized struct{}

func (Quantized) TermScorer(TermID) TermScorerFunc {
	return func(doc, freq uint32) float32 { return float32(freq) }
}

// ═══════════════════════════════════════════════════════════════════════════════
// LINEAR QUANTIZER
// ═══════════════════════════════════════════════════════════════════════════════
// Maps float scores in [0, max] onto integers in [1, 2^bits − 1]:
//
//	q(v) = round(v · (range − 1) / max) + 1,  range = 2^bits − 1
//
// so q(0) = 1 and q(max) = 2^bits − 1. Rounding (not truncation) keeps
// the mapping monotone with minimal error; inputs outside [0, max] are
// rejected — a score above the recorded max means the quantiser and the
// scores were built against different scorers.
// ═══════════════════════════════════════════════════════════════════════════════

// LinearQuantizer maps [0, max] onto [1, 2^bits − 1].
type LinearQuantizer struct {
	max   float32
	scale float64
	rng   uint32
}

// NewLinearQuantizer builds a quantiser for scores in [0, max].
// bits must be in [2, 32]; max must be positive.
func NewLinearQuantizer(max float32, bits uint8) (*LinearQuantizer, error) {
	if max <= 0 {
		return nil, fmt.Errorf("quantizer max must be positive, got %v: %w", max, ErrInvalidArgument)
	}
	if bits < 2 || bits > 32 {
		return nil, fmt.Errorf("quantizer bits must be in [2, 32], got %d: %w", bits, ErrInvalidArgument)
	}
	rng := uint32(1)<<bits - 1
	return &LinearQuantizer{
		max:   max,
		scale: float64(rng-1) / float64(max),
		rng:   rng,
	}, nil
}

// Range returns the largest value the quantiser produces (2^bits − 1).
func (q *LinearQuantizer) Range() uint32 { return q.rng }

// Quantize maps value into [1, Range]; values outside [0, max] fail.
func (q *LinearQuantizer) Quantize(value float32) (uint32, error) {
	if value < 0 || value > q.max {
		return 0, fmt.Errorf("quantizer input %v outside [0, %v]: %w", value, q.max, ErrInvalidArgument)
	}
	return uint32(math.Round(float64(value)*q.scale)) + 1, nil
}

// QuantizingScorer composes a float scorer with a quantiser, producing
// the integer scores a quantised index stores in its frequency slots.
type QuantizingScorer struct {
	scorer    Scorer
	quantizer *LinearQuantizer
}

// NewQuantizingScorer wraps scorer with quantizer.
func NewQuantizingScorer(scorer Scorer, quantizer *LinearQuantizer) *QuantizingScorer {
	return &QuantizingScorer{scorer: scorer, quantizer: quantizer}
}

// TermScorer returns a closure producing quantised integer scores.
// Out-of-range partial scores panic: they can only mean the quantiser
// was parameterised against a different scorer than the one scoring.
func (s *QuantizingScorer) TermScorer(term TermID) func(doc, freq uint32) uint32 {
	inner := s.scorer.TermScorer(term)
	return func(doc, freq uint32) uint32 {
		q, err := s.quantizer.Quantize(inner(doc, freq))
		if err != nil {
			panic(err)
		}
		return q
	}
}

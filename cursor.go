package ember

// ═══════════════════════════════════════════════════════════════════════════════
// SCORED CURSORS
// ═══════════════════════════════════════════════════════════════════════════════
// The query processors never touch the index, the scorer, or the WAND
// data directly — they drive CURSORS, one per query term, that bundle
// exactly what each algorithm class needs:
//
//	ScoredCursor         → posting cursor + scoring closure + weight
//	                       (Ranked-OR, Ranked-AND, TAAT)
//	MaxScoredCursor      → + the term's global score upper bound
//	                       (WAND, MaxScore)
//	BlockMaxScoredCursor → + a WandCursor over the term's block bounds
//	                       (the BlockMax variants)
//
// The scoring closure is bound ONCE per term per query (see scorer.go),
// so Score() is a straight function call with no per-posting dispatch.
//
// The block-max WandCursor advances in lockstep LOGIC — not lockstep
// docid — with the posting cursor: the processor moves it only when it
// actually wants a bound, which may be many postings apart.
// ═══════════════════════════════════════════════════════════════════════════════

// ScoredCursor drives one term's postings and scores them.
type ScoredCursor struct {
	Postings *PostingCursor
	Weight   float32
	scorer   TermScorerFunc
}

// DocID returns the current docid (the universe when exhausted).
func (c *ScoredCursor) DocID() uint32 { return c.Postings.DocID() }

// Freq returns the current frequency.
func (c *ScoredCursor) Freq() uint32 { return c.Postings.Freq() }

// Next advances one posting.
func (c *ScoredCursor) Next() { c.Postings.Next() }

// NextGEQ advances to the first posting with docid ≥ target.
func (c *ScoredCursor) NextGEQ(target uint32) { c.Postings.NextGEQ(target) }

// Score returns the weighted partial score of the current posting.
func (c *ScoredCursor) Score() float32 {
	return c.Weight * c.scorer(c.Postings.DocID(), c.Postings.Freq())
}

// MaxScoredCursor adds the term's global score bound.
type MaxScoredCursor struct {
	ScoredCursor
	maxScore float32
}

// MaxScore returns a bound ≥ Score() at every docid of the list.
func (c *MaxScoredCursor) MaxScore() float32 { return c.maxScore }

// BlockMaxScoredCursor adds the per-block score bounds.
type BlockMaxScoredCursor struct {
	MaxScoredCursor
	wand WandCursor
}

// BlockMaxDocID returns the last docid of the current score block.
func (c *BlockMaxScoredCursor) BlockMaxDocID() uint32 { return c.wand.DocID() }

// BlockMaxScore returns the current score block's weighted bound.
func (c *BlockMaxScoredCursor) BlockMaxScore() float32 { return c.Weight * c.wand.Score() }

// BlockMaxNextGEQ advances the block-bound cursor to the block
// containing (or first past) target.
func (c *BlockMaxScoredCursor) BlockMaxNextGEQ(target uint32) { c.wand.NextGEQ(target) }

// ═══════════════════════════════════════════════════════════════════════════════
// FACTORIES
// ═══════════════════════════════════════════════════════════════════════════════
// One cursor per query term, in query order. Terms outside the index
// fail with ErrOutOfRange — resolving terms is the lexicon's job, not
// the processors'.
// ═══════════════════════════════════════════════════════════════════════════════

// MakeScoredCursors opens one scored cursor per query term.
func MakeScoredCursors(idx *InvertedIndex, scorer Scorer, q Query) ([]ScoredCursor, error) {
	cursors := make([]ScoredCursor, 0, len(q.Terms))
	for _, t := range q.Terms {
		pc, err := idx.PostingCursor(t.ID)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, ScoredCursor{
			Postings: pc,
			Weight:   t.Weight,
			scorer:   scorer.TermScorer(t.ID),
		})
	}
	return cursors, nil
}

// MakeMaxScoredCursors opens cursors carrying the per-term bound.
func MakeMaxScoredCursors(idx *InvertedIndex, wdata *WandData, scorer Scorer, q Query) ([]MaxScoredCursor, error) {
	cursors := make([]MaxScoredCursor, 0, len(q.Terms))
	for _, t := range q.Terms {
		pc, err := idx.PostingCursor(t.ID)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, MaxScoredCursor{
			ScoredCursor: ScoredCursor{
				Postings: pc,
				Weight:   t.Weight,
				scorer:   scorer.TermScorer(t.ID),
			},
			maxScore: t.Weight * wdata.MaxTermScore(t.ID),
		})
	}
	return cursors, nil
}

// MakeBlockMaxScoredCursors opens cursors carrying per-block bounds.
func MakeBlockMaxScoredCursors(idx *InvertedIndex, wdata *WandData, scorer Scorer, q Query) ([]BlockMaxScoredCursor, error) {
	cursors := make([]BlockMaxScoredCursor, 0, len(q.Terms))
	for _, t := range q.Terms {
		pc, err := idx.PostingCursor(t.ID)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, BlockMaxScoredCursor{
			MaxScoredCursor: MaxScoredCursor{
				ScoredCursor: ScoredCursor{
					Postings: pc,
					Weight:   t.Weight,
					scorer:   scorer.TermScorer(t.ID),
				},
				maxScore: t.Weight * wdata.MaxTermScore(t.ID),
			},
			wand: wdata.WandCursor(t.ID),
		})
	}
	return cursors, nil
}

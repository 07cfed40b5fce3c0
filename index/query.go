package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// Query matches and scores documents. Queries are immutable and may be
// shared between goroutines.
type Query interface {
	fmt.Stringer
	weight(s *Searcher, scoring bool) (weight, error)
}

// weight is a query bound to the statistics of one Searcher.
type weight interface {
	eval(r *SegmentReader) *docSet
}

// docSet is the result of evaluating a weight on one segment.
// scores is nil when scoring is disabled.
type docSet struct {
	docs   *roaring.Bitmap
	scores map[DocID]float32
}

func newDocSet(scoring bool) *docSet {
	ds := &docSet{docs: roaring.New()}
	if scoring {
		ds.scores = make(map[DocID]float32)
	}
	return ds
}

func (ds *docSet) add(doc DocID, score float32) {
	ds.docs.Add(doc)
	if ds.scores != nil {
		ds.scores[doc] += score
	}
}

func (ds *docSet) score(doc DocID) float32 {
	if ds.scores == nil {
		return 0
	}
	return ds.scores[doc]
}

// TermQuery matches documents containing an exact term. Text terms are
// scored with BM25, numeric terms with a constant 1.
type TermQuery struct {
	Term Term
}

// NewTermQuery returns a query for t.
func NewTermQuery(t Term) *TermQuery { return &TermQuery{Term: t} }

func (q *TermQuery) String() string {
	return fmt.Sprintf("Term(%d:%s)", q.Term.Field, q.Term.Value)
}

func (q *TermQuery) weight(s *Searcher, scoring bool) (weight, error) {
	if err := checkField(s.schema, q.Term.Field, q.Term.Value.Type()); err != nil {
		return nil, err
	}
	w := &termWeight{term: q.Term, scoring: scoring}
	if scoring && q.Term.Value.Type() == FieldText {
		w.bm25 = bm25{weight: idf(s.DocFreq(q.Term), s.numDocs), avgLen: s.avgLen[q.Term.Field]}
	}
	return w, nil
}

type termWeight struct {
	term    Term
	bm25    bm25
	scoring bool
}

func (w *termWeight) eval(r *SegmentReader) *docSet {
	ds := newDocSet(w.scoring)
	if w.term.Value.Type() != FieldText {
		for _, d := range r.seg.termDocs(r.schema, w.term) {
			if !r.IsDeleted(d) {
				ds.add(d, 1)
			}
		}
		return ds
	}

	ti := r.seg.Text[w.term.Field]
	if ti == nil {
		return ds
	}
	for _, p := range ti.Terms[w.term.Value.AsText()] {
		if r.IsDeleted(p.Doc) {
			continue
		}
		ds.add(p.Doc, w.bm25.score(p.TermFreq(), ti.FieldLens[p.Doc]))
	}
	return ds
}

// PhraseQuery matches documents where the terms occur at consecutive
// positions of a text field.
type PhraseQuery struct {
	Field Field
	Terms []Token
}

// NewPhraseQuery returns a query for the given analyzed tokens. Token
// positions are relative; gaps are preserved.
func NewPhraseQuery(f Field, tokens []Token) *PhraseQuery {
	return &PhraseQuery{Field: f, Terms: tokens}
}

func (q *PhraseQuery) String() string {
	words := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		words[i] = t.Text
	}
	return fmt.Sprintf("Phrase(%d:%q)", q.Field, strings.Join(words, " "))
}

func (q *PhraseQuery) weight(s *Searcher, scoring bool) (weight, error) {
	if err := checkField(s.schema, q.Field, FieldText); err != nil {
		return nil, err
	}
	if len(q.Terms) == 0 {
		return emptyWeight{}, nil
	}
	w := &phraseWeight{field: q.Field, tokens: q.Terms, scoring: scoring}
	if scoring {
		var sum float32
		for _, t := range q.Terms {
			sum += idf(s.DocFreq(TextTerm(q.Field, t.Text)), s.numDocs)
		}
		w.bm25 = bm25{weight: sum, avgLen: s.avgLen[q.Field]}
	}
	return w, nil
}

type phraseWeight struct {
	field   Field
	tokens  []Token
	bm25    bm25
	scoring bool
}

func (w *phraseWeight) eval(r *SegmentReader) *docSet {
	ds := newDocSet(w.scoring)
	ti := r.seg.Text[w.field]
	if ti == nil {
		return ds
	}

	lists := make([]map[DocID][]uint32, len(w.tokens))
	for i, t := range w.tokens[1:] {
		postings := ti.Terms[t.Text]
		if len(postings) == 0 {
			return ds
		}
		m := make(map[DocID][]uint32, len(postings))
		for _, p := range postings {
			m[p.Doc] = p.Positions
		}
		lists[i+1] = m
	}

	first := w.tokens[0]
	for _, p := range ti.Terms[first.Text] {
		if r.IsDeleted(p.Doc) {
			continue
		}
		freq := 0
		for _, start := range p.Positions {
			if phraseAt(lists, w.tokens, p.Doc, start) {
				freq++
			}
		}
		if freq > 0 {
			ds.add(p.Doc, w.bm25.score(freq, ti.FieldLens[p.Doc]))
		}
	}
	return ds
}

func phraseAt(lists []map[DocID][]uint32, tokens []Token, doc DocID, start uint32) bool {
	for i := 1; i < len(tokens); i++ {
		want := start + tokens[i].Position - tokens[0].Position
		positions, ok := lists[i][doc]
		if !ok {
			return false
		}
		j := sort.Search(len(positions), func(k int) bool { return positions[k] >= want })
		if j == len(positions) || positions[j] != want {
			return false
		}
	}
	return true
}

// Bound is one end of a range. A nil *Bound is unbounded.
type Bound struct {
	Value     Value
	Inclusive bool
}

// Inclusive returns a bound that includes v.
func Inclusive(v Value) *Bound { return &Bound{Value: v, Inclusive: true} }

// Exclusive returns a bound that excludes v.
func Exclusive(v Value) *Bound { return &Bound{Value: v} }

// RangeQuery matches documents with a value of a numeric field within
// bounds. Matches score a constant 1.
type RangeQuery struct {
	Field Field
	Lower *Bound
	Upper *Bound
}

// NewRangeQuery returns a range query. Either bound may be nil.
func NewRangeQuery(f Field, lower, upper *Bound) *RangeQuery {
	return &RangeQuery{Field: f, Lower: lower, Upper: upper}
}

func (q *RangeQuery) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Range(%d:", q.Field)
	switch {
	case q.Lower == nil:
		sb.WriteString("(*")
	case q.Lower.Inclusive:
		fmt.Fprintf(&sb, "[%s", q.Lower.Value)
	default:
		fmt.Fprintf(&sb, "{%s", q.Lower.Value)
	}
	sb.WriteString(" TO ")
	switch {
	case q.Upper == nil:
		sb.WriteString("*)")
	case q.Upper.Inclusive:
		fmt.Fprintf(&sb, "%s]", q.Upper.Value)
	default:
		fmt.Fprintf(&sb, "%s}", q.Upper.Value)
	}
	sb.WriteString(")")
	return sb.String()
}

func (q *RangeQuery) weight(s *Searcher, scoring bool) (weight, error) {
	if !s.schema.valid(q.Field) {
		return nil, schemaErrorf("unknown field ordinal %d", q.Field)
	}
	e := s.schema.Entry(q.Field)
	if !e.Type.Numeric() {
		return nil, schemaErrorf("range on non-numeric field %q", e.Name)
	}
	lo, hi := uint64(0), ^uint64(0)
	for _, bd := range []*Bound{q.Lower, q.Upper} {
		if bd != nil && bd.Value.Type() != e.Type {
			return nil, schemaErrorf("field %q expects %s, got %s", e.Name, e.Type, bd.Value.Type())
		}
	}
	if q.Lower != nil {
		lo = q.Lower.Value.sortable()
		if !q.Lower.Inclusive {
			if lo == ^uint64(0) {
				return emptyWeight{}, nil
			}
			lo++
		}
	}
	if q.Upper != nil {
		hi = q.Upper.Value.sortable()
		if !q.Upper.Inclusive {
			if hi == 0 {
				return emptyWeight{}, nil
			}
			hi--
		}
	}
	if lo > hi {
		return emptyWeight{}, nil
	}
	return &rangeWeight{field: q.Field, indexed: e.Indexed, lo: lo, hi: hi, scoring: scoring}, nil
}

type rangeWeight struct {
	field   Field
	indexed bool
	lo, hi  uint64
	scoring bool
}

func (w *rangeWeight) eval(r *SegmentReader) *docSet {
	ds := newDocSet(w.scoring)
	ni := r.seg.Numeric[w.field]
	if ni == nil {
		return ds
	}
	if w.indexed {
		i := sort.Search(len(ni.Sorted), func(i int) bool { return ni.Sorted[i].Value >= w.lo })
		for ; i < len(ni.Sorted) && ni.Sorted[i].Value <= w.hi; i++ {
			if d := ni.Sorted[i].Doc; !r.IsDeleted(d) && !ds.docs.Contains(d) {
				ds.add(d, 1)
			}
		}
		return ds
	}
	for d, v := range ni.Column {
		doc := DocID(d)
		if v >= w.lo && v <= w.hi && ni.Present.Contains(doc) && !r.IsDeleted(doc) {
			ds.add(doc, 1)
		}
	}
	return ds
}

// Occur tells how a clause takes part in a BooleanQuery.
type Occur uint8

const (
	// Should clauses are optional. Without a Must clause at least one
	// Should clause has to match.
	Should Occur = iota
	// Must clauses have to match.
	Must
	// MustNot clauses exclude documents and never contribute to the score.
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// Clause is one subquery of a BooleanQuery.
type Clause struct {
	Occur Occur
	Query Query
}

// BooleanQuery combines subqueries. The score of a match is the sum of the
// scores of its matching Must and Should clauses.
//
// A BooleanQuery without clauses matches nothing. One with only MustNot
// clauses matches every live document not excluded.
type BooleanQuery struct {
	Clauses []Clause
}

// NewBooleanQuery returns a query over clauses.
func NewBooleanQuery(clauses ...Clause) *BooleanQuery {
	return &BooleanQuery{Clauses: clauses}
}

func (q *BooleanQuery) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = c.Occur.String() + c.Query.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (q *BooleanQuery) weight(s *Searcher, scoring bool) (weight, error) {
	if len(q.Clauses) == 0 {
		return emptyWeight{}, nil
	}
	w := &booleanWeight{scoring: scoring}
	for _, c := range q.Clauses {
		sub, err := c.Query.weight(s, scoring && c.Occur != MustNot)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case Must:
			w.must = append(w.must, sub)
		case MustNot:
			w.mustNot = append(w.mustNot, sub)
		default:
			w.should = append(w.should, sub)
		}
	}
	return w, nil
}

type booleanWeight struct {
	must, should, mustNot []weight
	scoring               bool
}

func (w *booleanWeight) eval(r *SegmentReader) *docSet {
	var out *docSet
	switch {
	case len(w.must) > 0:
		for _, sub := range w.must {
			ds := sub.eval(r)
			if out == nil {
				out = ds
				continue
			}
			out.docs.And(ds.docs)
			if out.scores != nil {
				for d, sc := range ds.scores {
					if out.docs.Contains(d) {
						out.scores[d] += sc
					}
				}
			}
			if out.docs.IsEmpty() {
				return out
			}
		}
		if out.scores != nil {
			for _, sub := range w.should {
				ds := sub.eval(r)
				for d, sc := range ds.scores {
					if out.docs.Contains(d) {
						out.scores[d] += sc
					}
				}
			}
		}
	case len(w.should) > 0:
		out = newDocSet(w.scoring)
		for _, sub := range w.should {
			ds := sub.eval(r)
			out.docs.Or(ds.docs)
			for d, sc := range ds.scores {
				out.scores[d] += sc
			}
		}
	default:
		out = newDocSet(w.scoring)
		out.docs = r.alive()
		if out.scores != nil {
			it := out.docs.Iterator()
			for it.HasNext() {
				out.scores[it.Next()] = 1
			}
		}
	}

	for _, sub := range w.mustNot {
		out.docs.AndNot(sub.eval(r).docs)
	}
	return out
}

// AllQuery matches every live document with a score of 1.
type AllQuery struct{}

// NewAllQuery returns a query matching every document.
func NewAllQuery() *AllQuery { return &AllQuery{} }

func (*AllQuery) String() string { return "All" }

func (*AllQuery) weight(_ *Searcher, scoring bool) (weight, error) {
	return allWeight{scoring: scoring}, nil
}

type allWeight struct{ scoring bool }

func (w allWeight) eval(r *SegmentReader) *docSet {
	ds := newDocSet(false)
	ds.docs = r.alive()
	if w.scoring {
		ds.scores = make(map[DocID]float32, ds.docs.GetCardinality())
		it := ds.docs.Iterator()
		for it.HasNext() {
			ds.scores[it.Next()] = 1
		}
	}
	return ds
}

type emptyWeight struct{}

func (emptyWeight) eval(*SegmentReader) *docSet { return newDocSet(false) }

func checkField(s *Schema, f Field, t FieldType) error {
	if !s.valid(f) {
		return schemaErrorf("unknown field ordinal %d", f)
	}
	if e := s.Entry(f); e.Type != t {
		return schemaErrorf("field %q expects %s, got %s", e.Name, e.Type, t)
	}
	return nil
}

package index

import (
	"bytes"
	"fmt"
	"slices"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// DocID addresses a document within one segment.
type DocID = uint32

// Posting lists the positions of a term in one document.
type Posting struct {
	Doc       DocID    `msgpack:"d"`
	Positions []uint32 `msgpack:"p"`
}

// TermFreq returns how often the term occurs in the document.
func (p Posting) TermFreq() int { return len(p.Positions) }

// textIndex is the inverted index of one text field within a segment.
type textIndex struct {
	Terms     map[string][]Posting `msgpack:"t"`
	FieldLens []uint32             `msgpack:"l"`
	TotalLen  uint64               `msgpack:"n"`
}

type numericEntry struct {
	Value uint64 `msgpack:"v"`
	Doc   DocID  `msgpack:"d"`
}

// numericIndex holds the values of one numeric field within a segment.
type numericIndex struct {
	// Column is the first value of each document (FAST fields).
	Column []uint64 `msgpack:"c,omitempty"`
	// Present marks the documents that have a value.
	Present *roaring.Bitmap `msgpack:"-"`
	// Sorted holds every value ordered by (value, doc) (INDEXED fields).
	Sorted []numericEntry `msgpack:"s,omitempty"`

	PresentBytes []byte `msgpack:"p"`
}

// segment is an immutable batch of indexed documents.
type segment struct {
	ID      string                  `msgpack:"id"`
	MaxDoc  uint32                  `msgpack:"max"`
	Text    map[Field]*textIndex    `msgpack:"text"`
	Numeric map[Field]*numericIndex `msgpack:"num"`
}

// termDocs returns the documents that contain term, ascending.
func (s *segment) termDocs(schema *Schema, t Term) []DocID {
	e := schema.Entry(t.Field)
	if e.Type == FieldText {
		ti := s.Text[t.Field]
		if ti == nil {
			return nil
		}
		postings := ti.Terms[t.Value.AsText()]
		docs := make([]DocID, len(postings))
		for i, p := range postings {
			docs[i] = p.Doc
		}
		return docs
	}

	ni := s.Numeric[t.Field]
	if ni == nil {
		return nil
	}
	v := t.Value.sortable()
	if e.Indexed {
		var docs []DocID
		i := sort.Search(len(ni.Sorted), func(i int) bool { return ni.Sorted[i].Value >= v })
		for ; i < len(ni.Sorted) && ni.Sorted[i].Value == v; i++ {
			docs = append(docs, ni.Sorted[i].Doc)
		}
		slices.Sort(docs)
		return slices.Compact(docs)
	}
	var docs []DocID
	for doc, cv := range ni.Column {
		if cv == v && ni.Present.Contains(uint32(doc)) {
			docs = append(docs, DocID(doc))
		}
	}
	return docs
}

// segmentBuilder accumulates documents into a new segment.
type segmentBuilder struct {
	schema  *Schema
	maxDoc  uint32
	text    map[Field]*textIndex
	numeric map[Field]*numericBuilder
}

type numericBuilder struct {
	column  []uint64
	present *roaring.Bitmap
	entries []numericEntry
}

func newSegmentBuilder(schema *Schema) *segmentBuilder {
	return &segmentBuilder{
		schema:  schema,
		text:    make(map[Field]*textIndex),
		numeric: make(map[Field]*numericBuilder),
	}
}

// add indexes doc and returns its id within the segment.
// doc must have been validated against the schema.
func (b *segmentBuilder) add(doc *Document) DocID {
	id := b.maxDoc
	b.maxDoc++
	for _, ti := range b.text {
		ti.FieldLens = append(ti.FieldLens, 0)
	}
	for _, nb := range b.numeric {
		nb.column = append(nb.column, 0)
	}

	// positions continue across values of the same field
	nextPos := make(map[Field]uint32)

	for _, fv := range doc.values {
		e := b.schema.Entry(fv.Field)
		if e.Type == FieldText {
			ti := b.textField(fv.Field)
			tokens := Analyze(e.Tokenizer, fv.Value.AsText())
			base := nextPos[fv.Field]
			var last uint32
			for _, tok := range tokens {
				pos := base + tok.Position
				postings := ti.Terms[tok.Text]
				if n := len(postings); n > 0 && postings[n-1].Doc == id {
					postings[n-1].Positions = append(postings[n-1].Positions, pos)
				} else {
					postings = append(postings, Posting{Doc: id, Positions: []uint32{pos}})
				}
				ti.Terms[tok.Text] = postings
				last = tok.Position
			}
			if len(tokens) > 0 {
				// gap of one position between values keeps phrases from spanning them
				nextPos[fv.Field] = base + last + 2
			}
			ti.FieldLens[id] += uint32(len(tokens))
			ti.TotalLen += uint64(len(tokens))
			continue
		}

		nb := b.numericField(fv.Field)
		v := fv.Value.sortable()
		if !nb.present.Contains(id) {
			nb.present.Add(id)
			nb.column[id] = v
		}
		nb.entries = append(nb.entries, numericEntry{Value: v, Doc: id})
	}

	return id
}

func (b *segmentBuilder) textField(f Field) *textIndex {
	ti := b.text[f]
	if ti == nil {
		ti = &textIndex{Terms: make(map[string][]Posting), FieldLens: make([]uint32, b.maxDoc)}
		b.text[f] = ti
	}
	return ti
}

func (b *segmentBuilder) numericField(f Field) *numericBuilder {
	nb := b.numeric[f]
	if nb == nil {
		nb = &numericBuilder{column: make([]uint64, b.maxDoc), present: roaring.New()}
		b.numeric[f] = nb
	}
	return nb
}

func (b *segmentBuilder) build(id string) *segment {
	seg := &segment{
		ID:      id,
		MaxDoc:  b.maxDoc,
		Text:    b.text,
		Numeric: make(map[Field]*numericIndex, len(b.numeric)),
	}
	for f, nb := range b.numeric {
		e := b.schema.Entry(f)
		ni := &numericIndex{Present: nb.present}
		ni.Present.RunOptimize()
		if e.Fast || !e.Indexed {
			ni.Column = nb.column
		}
		if e.Indexed {
			slices.SortFunc(nb.entries, compareEntries)
			ni.Sorted = nb.entries
		}
		seg.Numeric[f] = ni
	}
	return seg
}

func compareEntries(a, b numericEntry) int {
	if a.Value != b.Value {
		if a.Value < b.Value {
			return -1
		}
		return 1
	}
	return int(a.Doc) - int(b.Doc)
}

const segmentMagic = "PSEG"

// encodeSegment serializes and compresses a segment.
func encodeSegment(seg *segment, c Compression) ([]byte, error) {
	for _, ni := range seg.Numeric {
		b, err := ni.Present.ToBytes()
		if err != nil {
			return nil, err
		}
		ni.PresentBytes = b
	}
	raw, err := msgpack.Marshal(seg)
	for _, ni := range seg.Numeric {
		ni.PresentBytes = nil
	}
	if err != nil {
		return nil, fmt.Errorf("encode segment %s: %w", seg.ID, err)
	}
	block, err := compressBlock(raw, c)
	if err != nil {
		return nil, fmt.Errorf("compress segment %s: %w", seg.ID, err)
	}
	return append([]byte(segmentMagic), block...), nil
}

// decodeSegment is the inverse of encodeSegment.
func decodeSegment(data []byte) (*segment, error) {
	if !bytes.HasPrefix(data, []byte(segmentMagic)) {
		return nil, fmt.Errorf("%w: bad segment magic", ErrCorrupt)
	}
	raw, err := decompressBlock(data[len(segmentMagic):])
	if err != nil {
		return nil, err
	}
	var seg segment
	if err := msgpack.Unmarshal(raw, &seg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if seg.Text == nil {
		seg.Text = make(map[Field]*textIndex)
	}
	if seg.Numeric == nil {
		seg.Numeric = make(map[Field]*numericIndex)
	}
	for _, ti := range seg.Text {
		if ti.Terms == nil {
			ti.Terms = make(map[string][]Posting)
		}
	}
	for _, ni := range seg.Numeric {
		ni.Present = roaring.New()
		if err := ni.Present.UnmarshalBinary(ni.PresentBytes); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		ni.PresentBytes = nil
	}
	return &seg, nil
}

func encodeDeletes(bm *roaring.Bitmap) ([]byte, error) {
	bm.RunOptimize()
	return bm.ToBytes()
}

func decodeDeletes(data []byte) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return bm, nil
}

package index

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

type mergeInput struct {
	seg     *segment
	deletes *roaring.Bitmap // may be nil
}

// mergeSegments combines segments into one, dropping deleted documents.
// Surviving documents keep their relative order.
func mergeSegments(schema *Schema, id string, inputs []mergeInput) *segment {
	docMaps := make([][]int64, len(inputs))
	var maxDoc uint32
	for i, in := range inputs {
		m := make([]int64, in.seg.MaxDoc)
		for d := uint32(0); d < in.seg.MaxDoc; d++ {
			if in.deletes != nil && in.deletes.Contains(d) {
				m[d] = -1
				continue
			}
			m[d] = int64(maxDoc)
			maxDoc++
		}
		docMaps[i] = m
	}

	out := &segment{
		ID:      id,
		MaxDoc:  maxDoc,
		Text:    make(map[Field]*textIndex),
		Numeric: make(map[Field]*numericIndex),
	}

	for f := Field(0); int(f) < schema.NumFields(); f++ {
		e := schema.Entry(f)
		if e.Type == FieldText {
			if ti := mergeText(f, inputs, docMaps, maxDoc); ti != nil {
				out.Text[f] = ti
			}
			continue
		}
		if ni := mergeNumeric(e, f, inputs, docMaps, maxDoc); ni != nil {
			out.Numeric[f] = ni
		}
	}
	return out
}

func mergeText(f Field, inputs []mergeInput, docMaps [][]int64, maxDoc uint32) *textIndex {
	var out *textIndex
	for i, in := range inputs {
		ti := in.seg.Text[f]
		if ti == nil {
			continue
		}
		if out == nil {
			out = &textIndex{Terms: make(map[string][]Posting), FieldLens: make([]uint32, maxDoc)}
		}
		m := docMaps[i]
		for d, l := range ti.FieldLens {
			if nd := m[d]; nd >= 0 {
				out.FieldLens[nd] = l
				out.TotalLen += uint64(l)
			}
		}
		for term, postings := range ti.Terms {
			dst := out.Terms[term]
			for _, p := range postings {
				if nd := m[p.Doc]; nd >= 0 {
					dst = append(dst, Posting{Doc: DocID(nd), Positions: p.Positions})
				}
			}
			if len(dst) > 0 {
				out.Terms[term] = dst
			}
		}
	}
	return out
}

func mergeNumeric(e FieldEntry, f Field, inputs []mergeInput, docMaps [][]int64, maxDoc uint32) *numericIndex {
	var (
		column  []uint64
		present = roaring.New()
		sorted  []numericEntry
		seen    bool
	)
	for i, in := range inputs {
		ni := in.seg.Numeric[f]
		if ni == nil {
			continue
		}
		seen = true
		m := docMaps[i]
		if len(ni.Column) > 0 {
			if column == nil {
				column = make([]uint64, maxDoc)
			}
			for d, v := range ni.Column {
				if nd := m[d]; nd >= 0 {
					column[nd] = v
				}
			}
		}
		it := ni.Present.Iterator()
		for it.HasNext() {
			if nd := m[it.Next()]; nd >= 0 {
				present.Add(uint32(nd))
			}
		}
		for _, en := range ni.Sorted {
			if nd := m[en.Doc]; nd >= 0 {
				sorted = append(sorted, numericEntry{Value: en.Value, Doc: DocID(nd)})
			}
		}
	}
	if !seen {
		return nil
	}
	if (e.Fast || !e.Indexed) && column == nil {
		column = make([]uint64, maxDoc)
	}
	slices.SortFunc(sorted, compareEntries)
	present.RunOptimize()
	return &numericIndex{Column: column, Present: present, Sorted: sorted}
}

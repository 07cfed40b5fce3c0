package index

import "math"

// BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// idf = log(1 + (N - n + 0.5) / (n + 0.5))
func idf(docFreq, numDocs uint64) float32 {
	n := float64(docFreq)
	return float32(math.Log(1 + (float64(numDocs)-n+0.5)/(n+0.5)))
}

// bm25 scores one term occurrence count against a field length.
type bm25 struct {
	weight float32 // idf, summed for phrases
	avgLen float32
}

func (w bm25) score(tf int, fieldLen uint32) float32 {
	if w.avgLen <= 0 {
		return w.weight
	}
	t := float32(tf)
	norm := k1 * (1 - b + b*float32(fieldLen)/w.avgLen)
	return w.weight * t * (k1 + 1) / (t + norm)
}

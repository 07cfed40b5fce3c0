package testutil

import (
	"math"
	"math/rand"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/pallet/index"
	"github.com/hupe1980/pallet/tree"
)

// Vocabulary is the word list random text is drawn from. Earlier words are
// drawn more often.
var Vocabulary = []string{
	"sea", "man", "old", "great", "night", "river", "house", "garden",
	"winter", "stone", "light", "war", "peace", "city", "road", "island",
	"dream", "fire", "silver", "shadow", "storm", "song", "king", "mountain",
	"letter", "forest", "glass", "summer", "bridge", "harbor", "lantern", "orchard",
}

// Book is a record fixture implementing the pallet record contract.
type Book struct {
	Title  string `msgpack:"title" json:"title"`
	Body   string `msgpack:"body" json:"body"`
	Rating uint64 `msgpack:"rating" json:"rating"`
}

// TreeName names the tree of Book records.
func (Book) TreeName() string { return "books" }

// IndexFields declares title and body as text and rating as a number.
func (Book) IndexFields(b *index.SchemaBuilder) (index.Fields, error) {
	b.AddTextField("title", index.TEXT)
	b.AddTextField("body", index.TEXT)
	b.AddU64Field("rating", index.INDEXED|index.FAST)
	return b.Fields(), nil
}

// DefaultSearchFields searches title and body.
func (Book) DefaultSearchFields(f index.Fields) []index.Field {
	return []index.Field{f.MustNamed("title"), f.MustNamed("body")}
}

// IndexDocument projects the book. An empty body is omitted.
func (b Book) IndexDocument(f index.Fields) (*index.Document, error) {
	doc := index.NewDocument().
		AddText(f.MustNamed("title"), b.Title).
		AddU64(f.MustNamed("rating"), b.Rating)
	if b.Body != "" {
		doc.AddText(f.MustNamed("body"), b.Body)
	}
	return doc, nil
}

// NewDB opens a bbolt database in a temporary directory that is closed when
// the test ends.
func NewDB(tb testing.TB) *bolt.DB {
	tb.Helper()
	db, err := tree.OpenDB(filepath.Join(tb.TempDir(), "pallet.db"), time.Second)
	if err != nil {
		tb.Fatalf("open db: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })
	return db
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Zipf returns a Zipfian-distributed value in [0, n).
// P(k) ∝ 1/k^s where s is the skew parameter.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	// inverse transform
	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}

	return n - 1
}

// Words returns n words drawn from Vocabulary with a Zipfian distribution.
func (r *RNG) Words(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, n)
	for i := range n {
		out[i] = Vocabulary[r.zipfLocked(len(Vocabulary), 1.1)]
	}
	return out
}

// Sentence returns n space separated words.
func (r *RNG) Sentence(n int) string {
	return strings.Join(r.Words(n), " ")
}

// Books generates num books with titles of 1 to 4 words, bodies of 0 to 12
// words and ratings in [0, 10].
func (r *RNG) Books(num int) []Book {
	books := make([]Book, num)
	for i := range books {
		books[i] = Book{
			Title:  r.Sentence(1 + r.Intn(4)),
			Body:   r.Sentence(r.Intn(13)),
			Rating: uint64(r.Intn(11)),
		}
	}
	return books
}

// Matching returns the positions of the books whose title or body contains
// word, compared case-insensitively.
func Matching(books []Book, word string) []uint64 {
	word = strings.ToLower(word)
	var out []uint64
	for i, b := range books {
		for _, w := range strings.Fields(strings.ToLower(b.Title + " " + b.Body)) {
			if w == word {
				out = append(out, uint64(i))
				break
			}
		}
	}
	return out
}

// ComputeRecall returns the fraction of groundTruth found in actual.
func ComputeRecall(groundTruth, actual []uint64) float64 {
	if len(groundTruth) == 0 {
		if len(actual) == 0 {
			return 1.0
		}
		return 0.0
	}

	found := 0
	for _, id := range groundTruth {
		if slices.Contains(actual, id) {
			found++
		}
	}

	return float64(found) / float64(len(groundTruth))
}

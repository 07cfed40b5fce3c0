package index

import (
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// MaxTokenLen is the longest token, in bytes, the default tokenizer keeps.
const MaxTokenLen = 40

// Token is one analyzed term and its position within the value.
type Token struct {
	Text     string
	Position uint32
}

// Casers are stateful, so each goroutine takes its own.
var folders = sync.Pool{New: func() any { c := cases.Fold(); return &c }}

// Analyze splits text into tokens with the named tokenizer.
//
// The default tokenizer splits on every rune that is neither a letter nor a
// digit, case-folds each word and drops words longer than MaxTokenLen while
// keeping the positions of the following words. The raw tokenizer returns
// the whole value as one token.
func Analyze(tokenizer, text string) []Token {
	if text == "" {
		return nil
	}
	if tokenizer == TokenizerRaw {
		return []Token{{Text: text}}
	}

	c := folders.Get().(*cases.Caser)
	defer folders.Put(c)

	var (
		tokens []Token
		pos    uint32
		start  = -1
	)
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := text[start:end]
		start = -1
		if len(word) <= MaxTokenLen {
			tokens = append(tokens, Token{Text: c.String(word), Position: pos})
		}
		pos++
	}
	for i, r := range text {
		if r == utf8.RuneError || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(text))
	return tokens
}

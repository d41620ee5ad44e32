package embedding

import (
	"hash/fnv"
	"strings"
)

// Reserved ids of BERT-style vocabularies.
const (
	clsToken = 101
	sepToken = 102
	// firstWordToken keeps hashed words clear of the special token range.
	firstWordToken = 1000

	defaultVocabSize = 30522
	defaultMaxTokens = 256
)

// wordPunctuation is trimmed from both ends of every word.
const wordPunctuation = ".,;:!?|()[]{}\"'"

// Encoding is the model input for one text, padded to a fixed length.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Len returns the number of attended positions, [CLS] and [SEP] included.
func (e Encoding) Len() int {
	n := 0
	for _, m := range e.AttentionMask {
		n += int(m)
	}
	return n
}

// Tokenizer encodes text into fixed-length model inputs.
type Tokenizer interface {
	Encode(text string, maxTokens int) Encoding
}

// HashTokenizer maps every word to a vocabulary id by hashing it. It needs no
// vocabulary file; two texts sharing a word share its id.
type HashTokenizer struct {
	VocabSize int
}

// Encode returns [CLS] word ids [SEP] followed by padding. Words past
// maxTokens-2 are dropped.
func (t HashTokenizer) Encode(text string, maxTokens int) Encoding {
	if maxTokens < 2 {
		maxTokens = defaultMaxTokens
	}
	vocab := t.VocabSize
	if vocab <= firstWordToken {
		vocab = defaultVocabSize
	}
	enc := Encoding{
		InputIDs:      make([]int64, maxTokens),
		AttentionMask: make([]int64, maxTokens),
		TokenTypeIDs:  make([]int64, maxTokens),
	}
	enc.InputIDs[0], enc.AttentionMask[0] = clsToken, 1
	pos := 1
	for _, w := range Words(text) {
		if pos == maxTokens-1 {
			break
		}
		enc.InputIDs[pos] = int64(firstWordToken + wordHash(w)%(vocab-firstWordToken))
		enc.AttentionMask[pos] = 1
		pos++
	}
	enc.InputIDs[pos], enc.AttentionMask[pos] = sepToken, 1
	return enc
}

// Words lowercases text, splits it on whitespace and trims punctuation
// around each word. Inner punctuation stays, so "GSB120-LI" is one word.
func Words(text string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if w = strings.Trim(w, wordPunctuation); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// wordHash is the non-negative FNV-1a hash of w.
func wordHash(w string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	return int(h.Sum32() & 0x7fffffff)
}

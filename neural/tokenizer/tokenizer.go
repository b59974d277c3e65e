// Package tokenizer implements a WordPiece tokenizer compatible with the
// bert-base-uncased vocabulary: lower-cased basic tokenization followed by
// greedy longest-match subword splitting with "##" continuation pieces.
package tokenizer

import (
	"bufio"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Reserved tokens the vocabulary must define.
const (
	ClsToken = "[CLS]"
	SepToken = "[SEP]"
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
)

// Words longer than this are mapped straight to [UNK] rather than split.
const maxWordChars = 100

// WordPiece maps raw text to token-id sequences using a fixed pretrained
// vocabulary. Special token ids are resolved once at load time.
type WordPiece struct {
	tokenToID map[string]int
	idToToken []string

	clsID int
	sepID int
	padID int
	unkID int
}

// LoadVocab reads a vocab.txt file, one token per line, where the line
// number is the token id.
func LoadVocab(path string) (*WordPiece, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening vocabulary file")
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimRight(scanner.Text(), "\r\n"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading vocabulary file")
	}
	wp, err := New(tokens)
	if err != nil {
		return nil, errors.Wrapf(err, "vocabulary file %s", path)
	}
	return wp, nil
}

// New builds a WordPiece tokenizer from an ordered token list. The list must
// contain the [CLS], [SEP], [PAD] and [UNK] tokens.
func New(tokens []string) (*WordPiece, error) {
	if len(tokens) == 0 {
		return nil, errors.New("empty vocabulary")
	}
	wp := &WordPiece{
		tokenToID: make(map[string]int, len(tokens)),
		idToToken: tokens,
	}
	for id, tok := range tokens {
		wp.tokenToID[tok] = id
	}

	var ok bool
	if wp.clsID, ok = wp.tokenToID[ClsToken]; !ok {
		return nil, errors.Errorf("vocabulary is missing %s", ClsToken)
	}
	if wp.sepID, ok = wp.tokenToID[SepToken]; !ok {
		return nil, errors.Errorf("vocabulary is missing %s", SepToken)
	}
	if wp.padID, ok = wp.tokenToID[PadToken]; !ok {
		return nil, errors.Errorf("vocabulary is missing %s", PadToken)
	}
	if wp.unkID, ok = wp.tokenToID[UnkToken]; !ok {
		return nil, errors.Errorf("vocabulary is missing %s", UnkToken)
	}
	return wp, nil
}

// Size returns the number of entries in the vocabulary.
func (wp *WordPiece) Size() int { return len(wp.idToToken) }

// ClsID returns the id of the sequence-begin marker.
func (wp *WordPiece) ClsID() int { return wp.clsID }

// SepID returns the id of the sequence-end marker.
func (wp *WordPiece) SepID() int { return wp.sepID }

// PadID returns the id used to pad batches to a common length.
func (wp *WordPiece) PadID() int { return wp.padID }

// UnkID returns the id substituted for out-of-vocabulary pieces.
func (wp *WordPiece) UnkID() int { return wp.unkID }

// Tokenize splits text into WordPiece subword tokens. Tokenization is
// case-insensitive by construction: text is lower-cased before matching.
func (wp *WordPiece) Tokenize(text string) []string {
	var out []string
	for _, word := range basicTokenize(text) {
		out = append(out, wp.splitWord(word)...)
	}
	return out
}

// ConvertTokensToIDs maps tokens to their vocabulary ids, substituting the
// unknown id for anything unmapped.
func (wp *WordPiece) ConvertTokensToIDs(tokens []string) []int {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		if id, ok := wp.tokenToID[tok]; ok {
			ids[i] = id
		} else {
			ids[i] = wp.unkID
		}
	}
	return ids
}

// Token returns the token string for an id, or [UNK] for ids outside the
// vocabulary.
func (wp *WordPiece) Token(id int) string {
	if id < 0 || id >= len(wp.idToToken) {
		return UnkToken
	}
	return wp.idToToken[id]
}

// Encode tokenizes text, silently truncates to at most maxLen-2 content
// tokens, and wraps the ids with the [CLS] and [SEP] markers. An empty input
// encodes to exactly [CLS][SEP].
func (wp *WordPiece) Encode(text string, maxLen int) []int {
	tokens := wp.Tokenize(text)
	if limit := maxLen - 2; len(tokens) > limit {
		tokens = tokens[:limit]
	}
	ids := make([]int, 0, len(tokens)+2)
	ids = append(ids, wp.clsID)
	ids = append(ids, wp.ConvertTokensToIDs(tokens)...)
	ids = append(ids, wp.sepID)
	return ids
}

// splitWord applies greedy longest-match subword splitting to one word.
func (wp *WordPiece) splitWord(word string) []string {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []string{UnkToken}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		match := ""
		for start < end {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := wp.tokenToID[piece]; ok {
				match = piece
				break
			}
			end--
		}
		if match == "" {
			// No prefix of the remainder is in the vocabulary; the whole
			// word becomes a single unknown token.
			return []string{UnkToken}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

// basicTokenize lower-cases text and splits it into words and single
// punctuation characters.
func basicTokenize(text string) []string {
	text = strings.ToLower(text)

	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}

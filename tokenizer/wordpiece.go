package tokenizer

import (
	"fmt"
	"iter"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/7blacky7/visionprep/logutil"
)

type WordPiece struct {
	vocab     *Vocabulary
	lowercase bool
}

// continuationPrefix marks a piece that continues the previous word
const continuationPrefix = "##"

var wordPieceReplacer = strings.NewReplacer(
	" .", ".",
	" ?", "?",
	" !", "!",
	" ,", ",",
	" ' ", "'",
	" n't", "n't",
	" 'm", "'m",
	" do not", " don't",
	" 's", "'s",
	" 've", "'ve",
	" 're", "'re",
)

var _ Tokenizer = (*WordPiece)(nil)

func NewWordPiece(vocab *Vocabulary, lowercase bool) WordPiece {
	return WordPiece{
		vocab:     vocab,
		lowercase: lowercase,
	}
}

func (wpm WordPiece) Decode(ids []int32) (string, error) {
	var sb strings.Builder
	for i, id := range ids {
		if id < 0 || int(id) >= len(wpm.vocab.Values) {
			return "", fmt.Errorf("token id %d out of range", id)
		}

		piece := wpm.vocab.Values[id]
		if rest, ok := strings.CutPrefix(piece, continuationPrefix); ok {
			sb.WriteString(rest)
			continue
		}

		var separator string
		if i > 0 {
			separator = " "
		}
		sb.WriteString(separator + piece)
	}

	return wordPieceReplacer.Replace(sb.String()), nil
}

// stripAccents decomposes s and drops combining marks, as uncased BERT does
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF,
		r >= 0x3400 && r <= 0x4DBF,
		r >= 0x20000 && r <= 0x2A6DF,
		r >= 0x2A700 && r <= 0x2B73F,
		r >= 0x2B740 && r <= 0x2B81F,
		r >= 0x2B820 && r <= 0x2CEAF,
		r >= 0xF900 && r <= 0xFAFF,
		r >= 0x2F800 && r <= 0x2FA1F:
		return true
	}
	return false
}

// words splits s on whitespace, punctuation and CJK characters
func (wpm WordPiece) words(s string) iter.Seq[string] {
	if wpm.lowercase {
		s = stripAccents(strings.ToLower(s))
	}

	return func(yield func(string) bool) {
		var sb strings.Builder
		for _, r := range s {
			if isCJK(r) {
				sb.WriteRune(' ')
				sb.WriteRune(r)
				sb.WriteRune(' ')
				continue
			}
			sb.WriteRune(r)
		}

		for w := range strings.FieldsFuncSeq(sb.String(), unicode.IsSpace) {
			var start int
			for start < len(w) {
				end := strings.IndexFunc(w[start:], unicode.IsPunct)
				if end < 0 {
					end = len(w) - start
				} else if end == 0 {
					_, size := firstRune(w[start:])
					end = size
				}

				if !yield(w[start : start+end]) {
					return
				}

				start += end
			}
		}
	}
}

func firstRune(s string) (rune, int) {
	for i, r := range s {
		if i > 0 {
			return r, i
		}
	}
	return 0, len(s)
}

// pieces greedily matches the longest vocabulary entries in word. It
// returns nil when some part of the word cannot be matched.
func (wpm WordPiece) pieces(word string) []int32 {
	rs := []rune(word)

	var ids []int32
	for start := 0; start < len(rs); {
		end := len(rs)

		var id int32 = -1
		for ; start < end; end-- {
			subword := string(rs[start:end])
			if start > 0 {
				subword = continuationPrefix + subword
			}

			if id = wpm.vocab.Encode(subword); id >= 0 {
				break
			}
		}

		if id < 0 {
			return nil
		}

		ids = append(ids, id)
		start = end
	}
	return ids
}

func (wpm WordPiece) Encode(s string, addSpecial bool) ([]int32, error) {
	unk := int32(-1)
	if len(wpm.vocab.UNK) > 0 {
		unk = wpm.vocab.UNK[0]
	}

	var ids []int32
	for word := range wpm.words(s) {
		if pieces := wpm.pieces(word); len(pieces) > 0 {
			ids = append(ids, pieces...)
		} else if unk >= 0 {
			ids = append(ids, unk)
		}
	}

	if addSpecial {
		ids = wpm.vocab.addSpecials(ids)
	}

	logutil.Trace("encoded", "string", s, "ids", ids)
	return ids, nil
}

func (wpm WordPiece) Is(id int32, special Special) bool {
	return wpm.vocab.Is(id, special)
}

func (wpm WordPiece) Vocabulary() *Vocabulary {
	return wpm.vocab
}

package tokenizer

import (
	"cmp"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"github.com/dlclark/regexp2"
	heap "github.com/emirpasic/gods/v2/trees/binaryheap"

	"github.com/7blacky7/visionprep/logutil"
)

// gpt2Pretokenizer is the byte-level pretokenizer used by GPT-2 and BART
const gpt2Pretokenizer = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

type BytePairEncoding struct {
	vocab   *Vocabulary
	regexps []*regexp2.Regexp
}

var _ Tokenizer = (*BytePairEncoding)(nil)

func NewBytePairEncoding(vocab *Vocabulary, pretokenizers ...string) BytePairEncoding {
	if len(pretokenizers) == 0 {
		pretokenizers = []string{gpt2Pretokenizer}
	}

	regexps := make([]*regexp2.Regexp, len(pretokenizers))
	for i, p := range pretokenizers {
		regexps[i] = regexp2.MustCompile(p, regexp2.RE2)
	}

	return BytePairEncoding{vocab: vocab, regexps: regexps}
}

func (bpe BytePairEncoding) Vocabulary() *Vocabulary {
	return bpe.vocab
}

func (bpe BytePairEncoding) Is(id int32, special Special) bool {
	return bpe.vocab.Is(id, special)
}

func (bpe *BytePairEncoding) split(s string) iter.Seq[string] {
	parts := []string{s}
	for _, re := range bpe.regexps {
		var next []string
		for _, part := range parts {
			r := []rune(part)
			var offset int
			for m, _ := re.FindRunesMatch(r); m != nil; m, _ = re.FindNextMatch(m) {
				if m.Index > offset {
					next = append(next, string(r[offset:m.Index]))
				}

				next = append(next, m.String())
				offset = m.Index + m.Length
			}

			if offset < len(r) {
				next = append(next, string(r[offset:]))
			}
		}
		parts = next
	}

	return slices.Values(parts)
}

// byteRune maps a raw byte to the printable rune GPT-2 vocabularies use for it
func byteRune(b byte) rune {
	r := rune(b)
	switch {
	case r == 0x00ad:
		return 0x0143
	case r <= 0x0020:
		return r + 0x0100
	case r >= 0x007f && r <= 0x00a0:
		return r + 0x00a2
	}
	return r
}

// runeByte is the inverse of byteRune. ok is false for the NULL byte.
func runeByte(r rune) (byte, bool) {
	switch {
	case r == 0x0100:
		return 0, false
	case r == 0x0143:
		r = 0x00ad
	case r > 0x0100 && r <= 0x0120:
		r = r - 0x0100
	case r > 0x0120 && r <= 0x0142:
		r = r - 0x00a2
	}
	return byte(r), true
}

// fragment is a piece of input and, once resolved, its token ids
type fragment struct {
	value string
	ids   []int32
}

// fragments splits s around every special token so specials are never
// broken up by the pretokenizer.
func (bpe BytePairEncoding) fragments(s string) []fragment {
	frags := []fragment{{value: s}}
	for _, special := range bpe.vocab.SpecialVocabulary() {
		id := bpe.vocab.Encode(special)
		for i := 0; i < len(frags); i++ {
			frag := frags[i]
			if len(frag.ids) > 0 {
				continue
			}

			var middle []fragment
			switch i := strings.Index(frag.value, special); {
			case i < 0:
				middle = append(middle, frag)
			case i > 0:
				middle = append(middle, fragment{value: frag.value[:i]})
				fallthrough
			default:
				middle = append(middle, fragment{value: special, ids: []int32{id}})
				if rest := frag.value[i+len(special):]; rest != "" {
					middle = append(middle, fragment{value: rest})
				}
			}

			frags = append(frags[:i], append(middle, frags[i+1:]...)...)
		}
	}
	return frags
}

type pair struct {
	a, b  int
	rank  int
	value string
}

type symbol struct {
	p, n  int
	runes []rune
}

func (bpe BytePairEncoding) Encode(s string, addSpecial bool) ([]int32, error) {
	var ids []int32
	for _, frag := range bpe.fragments(s) {
		if len(frag.ids) > 0 {
			ids = append(ids, frag.ids...)
			continue
		}

		for split := range bpe.split(frag.value) {
			var sb strings.Builder
			for _, b := range []byte(split) {
				sb.WriteRune(byteRune(b))
			}

			if id := bpe.vocab.Encode(sb.String()); id >= 0 {
				ids = append(ids, id)
				continue
			}

			ids = append(ids, bpe.merge([]rune(sb.String()))...)
		}
	}

	if addSpecial {
		ids = bpe.vocab.addSpecials(ids)
	}

	logutil.Trace("encoded", "string", s, "ids", ids)
	return ids, nil
}

// merge applies the ranked merges to a single pretokenized word
func (bpe BytePairEncoding) merge(runes []rune) []int32 {
	symbols := make([]symbol, len(runes))
	for i := range runes {
		symbols[i] = symbol{p: i - 1, n: i + 1, runes: []rune{runes[i]}}
	}

	pairwise := func(a, b int) *pair {
		if a < 0 || b >= len(runes) {
			return nil
		}

		left, right := string(symbols[a].runes), string(symbols[b].runes)
		rank := bpe.vocab.Merge(left, right)
		if rank < 0 {
			return nil
		}

		return &pair{a: a, b: b, rank: rank, value: left + right}
	}

	pairs := heap.NewWith(func(i, j *pair) int {
		return cmp.Compare(i.rank, j.rank)
	})

	for i := range len(runes) - 1 {
		if pair := pairwise(i, i+1); pair != nil {
			pairs.Push(pair)
		}
	}

	for !pairs.Empty() {
		pair, _ := pairs.Pop()

		left, right := symbols[pair.a], symbols[pair.b]
		if len(left.runes) == 0 || len(right.runes) == 0 ||
			string(left.runes)+string(right.runes) != pair.value {
			// stale
			continue
		}

		if id := bpe.vocab.Encode(pair.value); id < 0 {
			continue
		}

		symbols[pair.a].runes = append(left.runes, right.runes...)
		symbols[pair.b].runes = nil

		symbols[pair.a].n = right.n
		if right.n < len(symbols) {
			symbols[right.n].p = pair.a
		}

		if pair := pairwise(symbols[pair.a].p, pair.a); pair != nil {
			pairs.Push(pair)
		}

		if pair := pairwise(pair.a, symbols[pair.a].n); pair != nil {
			pairs.Push(pair)
		}
	}

	var ids []int32
	for _, sym := range symbols {
		if len(sym.runes) == 0 {
			continue
		}

		if id := bpe.vocab.Encode(string(sym.runes)); id >= 0 {
			ids = append(ids, id)
		} else if len(bpe.vocab.UNK) > 0 {
			ids = append(ids, bpe.vocab.UNK[0])
		}
	}
	return ids
}

type lazyIdsString struct {
	ids []int32
}

func (l lazyIdsString) LogValue() slog.Value {
	return slog.AnyValue(fmt.Sprint(l.ids))
}

func (bpe BytePairEncoding) Decode(ids []int32) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= bpe.vocab.Size() {
			return "", fmt.Errorf("token id %d out of range", id)
		}

		for _, r := range bpe.vocab.Decode(id) {
			b, ok := runeByte(r)
			if !ok {
				continue
			}

			// raw bytes, not the UTF-8 encoding of r
			sb.WriteByte(b)
		}
	}

	logutil.Trace("decoded", "string", sb.String(), "from", lazyIdsString{ids: ids})
	return sb.String(), nil
}

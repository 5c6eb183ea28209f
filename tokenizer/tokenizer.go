// Package tokenizer encodes prompts into model token ids. It supports
// GPT-2 style byte-level BPE (vocab.json + merges.txt) and BERT style
// WordPiece (vocab.txt) vocabularies.
package tokenizer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type Tokenizer interface {
	Encode(s string, addSpecial bool) ([]int32, error)
	Decode(ids []int32) (string, error)
	Is(id int32, special Special) bool
	Vocabulary() *Vocabulary
}

var ErrNoVocabulary = errors.New("no tokenizer vocabulary found")

// Load reads the tokenizer files in dir. vocab.json + merges.txt select
// byte-level BPE, vocab.txt selects WordPiece.
func Load(dir string) (Tokenizer, error) {
	switch {
	case exists(filepath.Join(dir, "vocab.json")) && exists(filepath.Join(dir, "merges.txt")):
		return LoadBytePairEncoding(dir)
	case exists(filepath.Join(dir, "vocab.txt")):
		return LoadWordPiece(dir)
	default:
		return nil, fmt.Errorf("%w in %s", ErrNoVocabulary, dir)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// bpeSpecials are the BART/GPT-2 control tokens
var bpeSpecials = map[string]Special{
	"<s>":   SpecialBOS,
	"</s>":  SpecialEOS,
	"<pad>": SpecialPAD,
	"<unk>": SpecialUNK,
}

// wordPieceSpecials are the BERT control tokens
var wordPieceSpecials = map[string]Special{
	"[CLS]": SpecialBOS,
	"[SEP]": SpecialEOS,
	"[PAD]": SpecialPAD,
	"[UNK]": SpecialUNK,
}

func LoadBytePairEncoding(dir string) (*BytePairEncoding, error) {
	var ids map[string]int32
	if err := readJSON(filepath.Join(dir, "vocab.json"), &ids); err != nil {
		return nil, err
	}

	// added_tokens.json is optional, e.g. location bins
	added := make(map[string]int32)
	if err := readJSON(filepath.Join(dir, "added_tokens.json"), &added); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	merges, err := readMerges(filepath.Join(dir, "merges.txt"))
	if err != nil {
		return nil, err
	}

	vocab := buildVocabulary(ids, added, bpeSpecials)
	vocab.Merges = merges

	slog.Debug("loaded bpe tokenizer", "dir", dir, "vocab", vocab.Size(), "merges", len(merges), "added", len(added))
	bpe := NewBytePairEncoding(vocab)
	return &bpe, nil
}

func LoadWordPiece(dir string) (*WordPiece, error) {
	f, err := os.Open(filepath.Join(dir, "vocab.txt"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ids := make(map[string]int32)
	scanner := bufio.NewScanner(f)
	for i := int32(0); scanner.Scan(); i++ {
		ids[strings.TrimRight(scanner.Text(), "\r")] = i
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	config := struct {
		DoLowerCase *bool `json:"do_lower_case"`
	}{}
	if err := readJSON(filepath.Join(dir, "tokenizer_config.json"), &config); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	lowercase := true
	if config.DoLowerCase != nil {
		lowercase = *config.DoLowerCase
	}

	vocab := buildVocabulary(ids, nil, wordPieceSpecials)
	slog.Debug("loaded wordpiece tokenizer", "dir", dir, "vocab", vocab.Size(), "lowercase", lowercase)
	wpm := NewWordPiece(vocab, lowercase)
	return &wpm, nil
}

func buildVocabulary(ids, added map[string]int32, specials map[string]Special) *Vocabulary {
	size := 0
	for _, m := range []map[string]int32{ids, added} {
		for _, id := range m {
			size = max(size, int(id)+1)
		}
	}

	v := &Vocabulary{
		Values: make([]string, size),
		Types:  make([]int32, size),
		AddBOS: true,
		AddEOS: true,
	}

	for i := range v.Types {
		v.Types[i] = TOKEN_TYPE_UNUSED
	}

	for s, id := range ids {
		v.Values[id] = s
		v.Types[id] = TOKEN_TYPE_NORMAL
	}

	for s, id := range added {
		v.Values[id] = s
		v.Types[id] = TOKEN_TYPE_USER_DEFINED
	}

	for s, special := range specials {
		id, ok := ids[s]
		if !ok {
			continue
		}

		v.Types[id] = TOKEN_TYPE_CONTROL
		switch special {
		case SpecialBOS:
			v.BOS = append(v.BOS, id)
		case SpecialEOS:
			v.EOS = append(v.EOS, id)
		case SpecialPAD:
			v.PAD = append(v.PAD, id)
		case SpecialUNK:
			v.UNK = append(v.UNK, id)
			v.Types[id] = TOKEN_TYPE_UNKNOWN
		}
	}

	return v
}

func readJSON(path string, v any) error {
	bts, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(bts, v); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

func readMerges(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var merges []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		merges = append(merges, line)
	}

	return merges, scanner.Err()
}

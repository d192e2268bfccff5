package features

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// tokenPattern matches runs of two or more word characters, the default
// token pattern of the vectorizer the artifacts were fitted with.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// VectorizerSpec is the exported state of a fitted TF-IDF vectorizer.
type VectorizerSpec struct {
	Vocabulary   map[string]int `json:"vocabulary"`
	IDF          []float64      `json:"idf"`
	Lowercase    *bool          `json:"lowercase"`
	StripAccents string         `json:"strip_accents"`
	NgramRange   [2]int         `json:"ngram_range"`
	Norm         string         `json:"norm"`
	UseIDF       *bool          `json:"use_idf"`
	SublinearTF  bool           `json:"sublinear_tf"`
	StopWords    []string       `json:"stop_words"`
}

// Vectorizer turns a document into TF-IDF weights over a vocabulary fixed at
// training time. It is read-only after construction.
type Vectorizer struct {
	vocab        map[string]int
	idf          []float64
	dim          int
	lowercase    bool
	stripAccents string
	minN, maxN   int
	norm         string
	useIDF       bool
	sublinearTF  bool
	stopWords    map[string]struct{}
}

// LoadVectorizer reads a vectorizer exported as JSON.
func LoadVectorizer(path string) (*Vectorizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vectorizer: %w", err)
	}
	var spec VectorizerSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decode vectorizer %s: %w", path, err)
	}
	return NewVectorizer(spec)
}

// NewVectorizer validates spec and builds a vectorizer. Unset fields take the
// usual TF-IDF defaults: lowercase, unigrams, l2 norm, idf weighting.
func NewVectorizer(spec VectorizerSpec) (*Vectorizer, error) {
	if len(spec.Vocabulary) == 0 {
		return nil, fmt.Errorf("vectorizer vocabulary is empty")
	}
	dim := 0
	for term, idx := range spec.Vocabulary {
		if idx < 0 {
			return nil, fmt.Errorf("negative column %d for term %q", idx, term)
		}
		if idx+1 > dim {
			dim = idx + 1
		}
	}

	v := &Vectorizer{
		vocab:        spec.Vocabulary,
		dim:          dim,
		lowercase:    spec.Lowercase == nil || *spec.Lowercase,
		stripAccents: spec.StripAccents,
		minN:         spec.NgramRange[0],
		maxN:         spec.NgramRange[1],
		norm:         spec.Norm,
		useIDF:       spec.UseIDF == nil || *spec.UseIDF,
		sublinearTF:  spec.SublinearTF,
	}
	if v.minN == 0 && v.maxN == 0 {
		v.minN, v.maxN = 1, 1
	}
	if v.minN < 1 || v.maxN < v.minN {
		return nil, fmt.Errorf("invalid ngram range %v", spec.NgramRange)
	}
	switch v.norm {
	case "":
		v.norm = "l2"
	case "l1", "l2", "none":
	default:
		return nil, fmt.Errorf("unsupported norm %q", spec.Norm)
	}
	switch v.stripAccents {
	case "", "unicode", "ascii":
	default:
		return nil, fmt.Errorf("unsupported strip_accents %q", spec.StripAccents)
	}
	if v.useIDF {
		if len(spec.IDF) != dim {
			return nil, fmt.Errorf("idf has %d weights, vocabulary needs %d", len(spec.IDF), dim)
		}
		v.idf = spec.IDF
	}
	if len(spec.StopWords) > 0 {
		v.stopWords = make(map[string]struct{}, len(spec.StopWords))
		for _, w := range spec.StopWords {
			v.stopWords[w] = struct{}{}
		}
	}
	return v, nil
}

// Dim is the length of vectors produced by Transform.
func (v *Vectorizer) Dim() int { return v.dim }

// Transform returns the dense weight vector for doc. Terms outside the
// vocabulary are ignored.
func (v *Vectorizer) Transform(doc string) []float64 {
	out := make([]float64, v.dim)
	for _, term := range v.analyze(doc) {
		if idx, ok := v.vocab[term]; ok {
			out[idx]++
		}
	}

	for i, tf := range out {
		if tf == 0 {
			continue
		}
		if v.sublinearTF {
			tf = 1 + math.Log(tf)
		}
		if v.useIDF {
			tf *= v.idf[i]
		}
		out[i] = tf
	}

	switch v.norm {
	case "l2":
		var sum float64
		for _, w := range out {
			sum += w * w
		}
		scale(out, math.Sqrt(sum))
	case "l1":
		var sum float64
		for _, w := range out {
			sum += math.Abs(w)
		}
		scale(out, sum)
	}
	return out
}

func (v *Vectorizer) analyze(doc string) []string {
	if v.lowercase {
		doc = strings.ToLower(doc)
	}
	switch v.stripAccents {
	case "unicode":
		doc = stripCombining(norm.NFKD.String(doc), false)
	case "ascii":
		doc = stripCombining(norm.NFKD.String(doc), true)
	}

	tokens := tokenPattern.FindAllString(doc, -1)
	if v.stopWords != nil {
		kept := tokens[:0]
		for _, tok := range tokens {
			if _, stop := v.stopWords[tok]; !stop {
				kept = append(kept, tok)
			}
		}
		tokens = kept
	}
	return ngrams(tokens, v.minN, v.maxN)
}

func ngrams(tokens []string, minN, maxN int) []string {
	if maxN == 1 {
		return tokens
	}
	var out []string
	if minN == 1 {
		out = append(out, tokens...)
		minN = 2
	}
	for n := minN; n <= maxN && n <= len(tokens); n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

func stripCombining(s string, asciiOnly bool) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		if asciiOnly && r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
}

func scale(vec []float64, denom float64) {
	if denom == 0 {
		return
	}
	for i := range vec {
		vec[i] /= denom
	}
}

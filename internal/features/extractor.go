// Package features builds the numeric input of the credibility classifiers
// from article text and its publishing brand.
package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrMissingInput is returned when a request lacks the content to work on.
var ErrMissingInput = errors.New("missing input")

// DefaultBrand stands in for requests that do not name a brand.
const DefaultBrand = "Unknown"

const brandColumnPrefix = "Brand_"

// Block names one contiguous segment of a flattened FeatureVector.
type Block string

const (
	BlockText    Block = "text"
	BlockLexical Block = "lexical"
	BlockBrand   Block = "brand"
)

// DefaultLayout is the column order the classifiers were trained on: text
// weights first, then lexical statistics, then brand indicators.
var DefaultLayout = []Block{BlockText, BlockLexical, BlockBrand}

// FeatureVector is the per-request classifier input.
type FeatureVector struct {
	TextLength    float64
	WordCount     float64
	AvgWordLength float64
	Brand         []float64
	Text          []float64

	layout []Block
}

// Lexical returns [text_length, word_count, avg_word_length].
func (v FeatureVector) Lexical() []float64 {
	return []float64{v.TextLength, v.WordCount, v.AvgWordLength}
}

// Len is the length of Dense().
func (v FeatureVector) Len() int {
	return 3 + len(v.Brand) + len(v.Text)
}

// Dense flattens the vector following its layout.
func (v FeatureVector) Dense() []float64 {
	layout := v.layout
	if len(layout) == 0 {
		layout = DefaultLayout
	}
	out := make([]float64, 0, v.Len())
	for _, b := range layout {
		switch b {
		case BlockText:
			out = append(out, v.Text...)
		case BlockLexical:
			out = append(out, v.Lexical()...)
		case BlockBrand:
			out = append(out, v.Brand...)
		}
	}
	return out
}

// Dense32 is Dense converted to float32 for tensor inputs.
func (v FeatureVector) Dense32() []float32 {
	dense := v.Dense()
	out := make([]float32, len(dense))
	for i, x := range dense {
		out[i] = float32(x)
	}
	return out
}

// Extractor combines lexical statistics, brand one-hot encoding and TF-IDF
// weights into a FeatureVector.
type Extractor struct {
	vectorizer   *Vectorizer
	brandColumns []string
	brandIndex   map[string]int
	layout       []Block
}

// NewExtractor builds an extractor. A nil or empty layout selects DefaultLayout.
func NewExtractor(vectorizer *Vectorizer, brandColumns []string, layout []Block) (*Extractor, error) {
	if vectorizer == nil {
		return nil, errors.New("vectorizer is required")
	}
	if len(layout) == 0 {
		layout = DefaultLayout
	}
	if err := validateLayout(layout); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(brandColumns))
	for i, col := range brandColumns {
		if _, dup := index[col]; dup {
			return nil, fmt.Errorf("duplicate brand column %q", col)
		}
		index[col] = i
	}
	return &Extractor{
		vectorizer:   vectorizer,
		brandColumns: append([]string(nil), brandColumns...),
		brandIndex:   index,
		layout:       append([]Block(nil), layout...),
	}, nil
}

// Dim is the length of every vector produced by Extract.
func (e *Extractor) Dim() int {
	return 3 + len(e.brandColumns) + e.vectorizer.Dim()
}

// Extract builds the feature vector for content published by brand. Content
// without any non-space character fails with ErrMissingInput; an unknown
// brand yields an all-zero indicator.
func (e *Extractor) Extract(content, brand string) (FeatureVector, error) {
	if strings.TrimSpace(content) == "" {
		return FeatureVector{}, fmt.Errorf("content is required: %w", ErrMissingInput)
	}
	if brand == "" {
		brand = DefaultBrand
	}

	words := strings.Fields(content)
	var letters int
	for _, w := range words {
		letters += utf8.RuneCountInString(w)
	}
	var avg float64
	if len(words) > 0 {
		avg = float64(letters) / float64(len(words))
	}

	return FeatureVector{
		TextLength:    float64(utf8.RuneCountInString(content)),
		WordCount:     float64(len(words)),
		AvgWordLength: avg,
		Brand:         e.oneHot(brand),
		Text:          e.vectorizer.Transform(content),
		layout:        e.layout,
	}, nil
}

func (e *Extractor) oneHot(brand string) []float64 {
	out := make([]float64, len(e.brandColumns))
	if idx, ok := e.brandIndex[brandColumnPrefix+brand]; ok {
		out[idx] = 1
	}
	return out
}

// LoadBrandColumns reads the trained brand column names from a JSON array.
func LoadBrandColumns(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read brand columns: %w", err)
	}
	var cols []string
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, fmt.Errorf("decode brand columns %s: %w", path, err)
	}
	return cols, nil
}

// ParseLayout converts block names into a layout.
func ParseLayout(names []string) ([]Block, error) {
	if len(names) == 0 {
		return nil, nil
	}
	layout := make([]Block, len(names))
	for i, n := range names {
		layout[i] = Block(strings.ToLower(strings.TrimSpace(n)))
	}
	return layout, validateLayout(layout)
}

func validateLayout(layout []Block) error {
	seen := make(map[Block]bool, 3)
	for _, b := range layout {
		switch b {
		case BlockText, BlockLexical, BlockBrand:
		default:
			return fmt.Errorf("unknown feature block %q", b)
		}
		if seen[b] {
			return fmt.Errorf("feature block %q listed twice", b)
		}
		seen[b] = true
	}
	if len(seen) != 3 {
		return fmt.Errorf("feature layout must list text, lexical and brand, got %v", layout)
	}
	return nil
}

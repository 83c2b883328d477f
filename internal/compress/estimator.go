package compress

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator approximates the token cost of a text.
type Estimator interface {
	Estimate(text string) int
}

// CharEstimator charges one token per four characters.
type CharEstimator struct{}

// Estimate returns runes/4.
func (CharEstimator) Estimate(text string) int {
	return utf8.RuneCountInString(text) / 4
}

const defaultEncoding = "cl100k_base"

// TiktokenEstimator counts real BPE tokens with an offline-loaded encoding.
type TiktokenEstimator struct {
	mu  sync.RWMutex
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads encoding, or cl100k_base when encoding is empty.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// Estimate returns the number of BPE tokens in text.
func (e *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.enc.Encode(text, nil, nil))
}

// NewEstimator returns the estimator named by kind: "chars" (default) or "tiktoken".
func NewEstimator(kind string) (Estimator, error) {
	switch kind {
	case "", "chars":
		return CharEstimator{}, nil
	case "tiktoken":
		return NewTiktokenEstimator("")
	default:
		return nil, fmt.Errorf("unknown estimator %q", kind)
	}
}

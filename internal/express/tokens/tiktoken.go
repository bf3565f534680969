package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is shared by every chat model the limit table knows
const DefaultEncoding = "cl100k_base"

var allSpecial = []string{"all"}

// TiktokenEncoder wraps a tiktoken encoding, loaded on first use
// (the BPE ranks may be downloaded at that point).
type TiktokenEncoder struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenEncoder creates a lazily initialized encoder for encoding
func NewTiktokenEncoder(encoding string) *TiktokenEncoder {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenEncoder{encoding: encoding}
}

// Init loads the encoding. Call it at startup to fail fast.
func (t *TiktokenEncoder) Init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Encode returns the token ids of text, treating special tokens as text.
// It returns nil when the encoding could not be loaded; check Init first.
func (t *TiktokenEncoder) Encode(text string) []int {
	if err := t.Init(); err != nil {
		return nil
	}
	return t.enc.Encode(text, allSpecial, nil)
}

func (t *TiktokenEncoder) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}

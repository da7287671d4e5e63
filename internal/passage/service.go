// Package passage is the catalog of typeable texts. Rooms only carry a
// passage index and length; clients fetch the text out-of-band through
// this service.
package passage

import (
	"context"
	"errors"
	"unicode/utf8"
)

var ErrNotFound = errors.New("passage not found")

// Passage is one catalog entry.
type Passage struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Length is the number of characters a racer must type to finish.
func (p Passage) Length() int {
	return utf8.RuneCountInString(p.Text)
}

// Service resolves catalog passages. Implementations are safe for use
// from many rooms at once.
type Service interface {
	Get(ctx context.Context, index int) (Passage, error)
	Random(ctx context.Context) (Passage, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// seedPassages bootstraps an empty catalog so a fresh deployment can
// race immediately.
var seedPassages = []string{
	"The quick brown fox jumps over the lazy dog while the patient hound watches from the porch, waiting for the race to begin.",
	"Typing fast is a matter of rhythm more than speed; the fingers learn the words long before the mind finishes reading them.",
	"A short code, a shared passage, and a handful of rivals: everything a good race needs fits in a single browser tab.",
	"Practice does not make perfect. Perfect practice makes perfect, and a missed keystroke is the fastest teacher of all.",
	"Somewhere between the first letter and the last period, every racer discovers exactly how well they know their own keyboard.",
}

// Package paginate splits recognized text into page-sized chunks.
//
// Pages are cut at the last paragraph break, line break or space inside a
// window of MaxCharsPerPage characters. A soft break is used only when it
// leaves a page of at least MinFillRatio*MaxCharsPerPage characters; otherwise
// the window is cut exactly at its end, which may split a word.
//
// Characters are counted as Unicode code points.
package paginate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	// DefaultMaxCharsPerPage is the page budget used for scanned notes.
	DefaultMaxCharsPerPage = 1800

	// DefaultMinFillRatio is the share of the budget a page must reach
	// before a soft boundary is accepted as the cut point.
	DefaultMinFillRatio = 0.6
)

// ErrInvalidArgument is returned for a non-positive page budget or a fill
// ratio outside [0, 1].
var ErrInvalidArgument = errors.New("invalid argument")

var boundaries = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(" "),
}

// Paginator holds the pagination parameters. The zero value is not usable;
// build one with New or Default.
type Paginator struct {
	MaxCharsPerPage int
	MinFillRatio    float64
}

// New returns a Paginator with the given budget and the default fill ratio.
func New(maxCharsPerPage int) Paginator {
	return Paginator{
		MaxCharsPerPage: maxCharsPerPage,
		MinFillRatio:    DefaultMinFillRatio,
	}
}

// Default returns a Paginator with DefaultMaxCharsPerPage and DefaultMinFillRatio.
func Default() Paginator {
	return New(DefaultMaxCharsPerPage)
}

// SplitIntoPages splits fullText into pages of at most maxCharsPerPage
// characters using DefaultMinFillRatio.
func SplitIntoPages(fullText string, maxCharsPerPage int) ([]string, error) {
	return New(maxCharsPerPage).Split(fullText)
}

// Validate reports whether the parameters can be used for splitting.
func (p Paginator) Validate() error {
	if p.MaxCharsPerPage <= 0 {
		return fmt.Errorf("%w: max chars per page must be positive, got %d", ErrInvalidArgument, p.MaxCharsPerPage)
	}
	if p.MinFillRatio < 0 || p.MinFillRatio > 1 {
		return fmt.Errorf("%w: min fill ratio must be within [0, 1], got %g", ErrInvalidArgument, p.MinFillRatio)
	}
	return nil
}

// Split returns the pages of fullText in reading order. Blank input yields
// no pages and no error.
func (p Paginator) Split(fullText string) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	text := []rune(strings.TrimSpace(fullText))
	if len(text) == 0 {
		return nil, nil
	}
	if len(text) <= p.MaxCharsPerPage {
		return []string{string(text)}, nil
	}

	minOffset := float64(p.MaxCharsPerPage) * p.MinFillRatio
	var pages []string

	for i := 0; i < len(text); {
		end := min(i+p.MaxCharsPerPage, len(text))

		if end == len(text) {
			if last := strings.TrimSpace(string(text[i:])); last != "" {
				pages = append(pages, last)
			}
			break
		}

		cut := i + cutOffset(text[i:end], minOffset)

		if page := strings.TrimSpace(string(text[i:cut])); page != "" {
			pages = append(pages, page)
		}

		i = cut
		for i < len(text) && unicode.IsSpace(text[i]) {
			i++
		}
	}

	return pages, nil
}

// cutOffset picks the cut point inside window. It falls back to the window
// length (a hard cut) when no boundary sits at or beyond minOffset.
func cutOffset(window []rune, minOffset float64) int {
	for _, sep := range boundaries {
		idx := lastIndex(window, sep)
		if idx >= 0 && float64(idx) >= minOffset {
			return idx
		}
	}
	return len(window)
}

func lastIndex(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

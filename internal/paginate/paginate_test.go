package paginate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIntoPages_ShortText(t *testing.T) {
	pages, err := SplitIntoPages("Hello world", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello world"}, pages)
}

func TestSplitIntoPages_ExactBudgetIsSinglePage(t *testing.T) {
	text := strings.Repeat("a", 40)
	pages, err := SplitIntoPages("  "+text+"\n", 40)
	require.NoError(t, err)
	assert.Equal(t, []string{text}, pages)
}

func TestSplitIntoPages_CutsAtSpace(t *testing.T) {
	text := strings.Repeat("A", 50) + " " + strings.Repeat("B", 50)

	pages, err := SplitIntoPages(text, 60)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, strings.Repeat("A", 50), pages[0])
	assert.Equal(t, strings.Repeat("B", 50), pages[1])
}

func TestSplitIntoPages_HardCutWithoutWhitespace(t *testing.T) {
	pages, err := SplitIntoPages(strings.Repeat("X", 200), 50)
	require.NoError(t, err)
	require.Len(t, pages, 4)
	for _, page := range pages {
		assert.Equal(t, strings.Repeat("X", 50), page)
	}
}

func TestSplitIntoPages_PrefersParagraphBreak(t *testing.T) {
	text := "Para one.\n\nPara two is much longer than the limit and keeps going on and on."

	pages, err := SplitIntoPages(text, 15)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pages), 2)
	assert.Equal(t, "Para one.", pages[0])
	assert.Equal(t, "Para two is", pages[1])
	assertPageInvariants(t, text, pages, 15)
}

func TestSplitIntoPages_ParagraphTooEarlyFallsThroughToLine(t *testing.T) {
	// The paragraph break sits at offset 2, below 60% of 20; the line break at 12 qualifies.
	text := "ab\n\ncdefghij\nklmnop qrstuvwxyz"

	pages, err := SplitIntoPages(text, 20)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "ab\n\ncdefghij", pages[0])
	assert.Equal(t, "klmnop qrstuvwxyz", pages[1])
}

func TestSplitIntoPages_BlankInput(t *testing.T) {
	for _, text := range []string{"", "   \n\t  ", "\n\n\n"} {
		pages, err := SplitIntoPages(text, 10)
		require.NoError(t, err)
		assert.Empty(t, pages, "input %q", text)
	}
}

func TestSplitIntoPages_InvalidBudget(t *testing.T) {
	for _, budget := range []int{0, -1, -1800} {
		pages, err := SplitIntoPages("some text", budget)
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.Nil(t, pages)
	}
}

func TestPaginator_InvalidRatio(t *testing.T) {
	for _, ratio := range []float64{-0.1, 1.5} {
		_, err := Paginator{MaxCharsPerPage: 10, MinFillRatio: ratio}.Split("some text")
		require.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestPaginator_ZeroRatioAcceptsAnyBoundary(t *testing.T) {
	p := Paginator{MaxCharsPerPage: 10, MinFillRatio: 0}

	pages, err := p.Split("ab cdefghijklmnop")
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "cdefghijkl", "mnop"}, pages)
}

func TestPaginator_FullRatioForcesHardCuts(t *testing.T) {
	p := Paginator{MaxCharsPerPage: 10, MinFillRatio: 1}

	pages, err := p.Split("abcd efgh ijkl mnop")
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd efgh", "ijkl mnop"}, pages)
}

func TestSplitIntoPages_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("щ", 30) + " " + strings.Repeat("ж", 30)

	pages, err := SplitIntoPages(text, 40)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, strings.Repeat("щ", 30), pages[0])
	assert.Equal(t, strings.Repeat("ж", 30), pages[1])
}

func TestSplitIntoPages_SkipsWhitespaceRunsBetweenPages(t *testing.T) {
	text := strings.Repeat("a", 8) + " \t\n \n" + strings.Repeat("b", 8)

	pages, err := SplitIntoPages(text, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{strings.Repeat("a", 8), strings.Repeat("b", 8)}, pages)
}

func TestSplitIntoPages_SkipsCarriageReturnAfterCut(t *testing.T) {
	// The cut lands on the space; "\r\n" after it is skipped too, so the
	// next window starts at the first letter.
	pages, err := SplitIntoPages("aaa \r\nbbbb", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbbb"}, pages)

	pages, err = SplitIntoPages("aaa \u00a0bbbb", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbbb"}, pages)
}

func TestSplitIntoPages_Invariants(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("Line number ")
		sb.WriteString(strings.Repeat("w", i%7+1))
		if i%5 == 4 {
			sb.WriteString("\n\n")
		} else if i%2 == 0 {
			sb.WriteString("\n")
		} else {
			sb.WriteString(" ")
		}
	}
	sb.WriteString(strings.Repeat("Z", 90))
	text := sb.String()

	for _, budget := range []int{1, 7, 25, 60, 200, 5000} {
		pages, err := SplitIntoPages(text, budget)
		require.NoError(t, err)
		assertPageInvariants(t, text, pages, budget)
	}
}

func assertPageInvariants(t *testing.T, text string, pages []string, budget int) {
	t.Helper()

	require.NotEmpty(t, pages)
	for i, page := range pages {
		assert.NotEmpty(t, strings.TrimSpace(page), "page %d is blank", i)
		assert.LessOrEqual(t, utf8.RuneCountInString(page), budget, "page %d exceeds budget", i)
	}
	assert.Equal(t, stripSpace(text), stripSpace(strings.Join(pages, " ")))
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

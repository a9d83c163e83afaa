package search

import (
	"cmp"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// ScoreAlias names the similarity projection in rendered statements.
const ScoreAlias = "similarity"

// OrderBy is the total order of search results: similarity descending, ties
// broken by ascending id. After mirrors it exactly.
const OrderBy = ScoreAlias + " DESC, id ASC"

// Candidate is a market together with its similarity to the query vector.
type Candidate struct {
	Market domain.Market
	Score  float64
}

// Score converts a cosine distance into a similarity score.
func Score(distance float64) float64 {
	return 1 - distance
}

// Compare orders candidates by OrderBy. It returns a negative number when a
// ranks before b.
func Compare(a, b Candidate) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Market.ID, b.Market.ID)
}

// Follows reports whether c ranks strictly after the cursor position.
func Follows(c Candidate, cur Cursor) bool {
	return c.Score < cur.Score || (c.Score == cur.Score && c.Market.ID > cur.ID)
}

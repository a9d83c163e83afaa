package search

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

const cursorSep = "_"

// Bounds on the score segment. The longest shortest-decimal rendering of a
// float64 is a subnormal near 4.9e-324, about 345 characters with exponent
// -341. Anything beyond cannot come from Encode, and converting it to a
// float would need arbitrarily large powers of ten.
const (
	maxScoreLen      = 400
	maxScoreExponent = 350
)

// Cursor is the sort position of the last row on a page.
type Cursor struct {
	Score float64
	ID    int64
}

// CursorOf returns the position of c.
func CursorOf(c Candidate) Cursor {
	return Cursor{Score: c.Score, ID: c.Market.ID}
}

// Encode renders the cursor as "<score>_<id>". The score is written as the
// shortest decimal that parses back to the identical float64, so equality
// with the store's recomputed similarity holds on the next page.
func (c Cursor) Encode() (string, error) {
	if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
		return "", fmt.Errorf("search: cannot encode non-finite score %v for id %d", c.Score, c.ID)
	}
	return decimal.NewFromFloat(c.Score).String() + cursorSep + strconv.FormatInt(c.ID, 10), nil
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (Cursor, error) {
	scoreText, idText, found := strings.Cut(token, cursorSep)
	if !found {
		return Cursor{}, &domain.MalformedCursorError{Cursor: token, Reason: "missing separator"}
	}
	if scoreText == "" || idText == "" {
		return Cursor{}, &domain.MalformedCursorError{Cursor: token, Reason: "empty segment"}
	}

	if len(scoreText) > maxScoreLen {
		return Cursor{}, &domain.MalformedCursorError{Cursor: token, Reason: "score out of range"}
	}
	d, err := decimal.NewFromString(scoreText)
	if err != nil {
		return Cursor{}, &domain.MalformedCursorError{Cursor: token, Reason: "score is not a decimal"}
	}
	if exp := d.Exponent(); exp > maxScoreExponent || exp < -maxScoreExponent {
		return Cursor{}, &domain.MalformedCursorError{Cursor: token, Reason: "score out of range"}
	}
	score, _ := d.Float64()
	if math.IsInf(score, 0) {
		return Cursor{}, &domain.MalformedCursorError{Cursor: token, Reason: "score out of range"}
	}

	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		return Cursor{}, &domain.MalformedCursorError{Cursor: token, Reason: "id is not an integer"}
	}
	return Cursor{Score: score, ID: id}, nil
}

package query

import (
	"fmt"
	"strings"

	"github.com/hyperjump/agrafes/internal/apierr"
)

// Proximity builds an FTS5 NEAR() proximity expression from terms,
// consumable as a match query string. Grounded on original_source's
// proximity_query.
func Proximity(terms []string, distance int) (string, error) {
	if len(terms) < 2 {
		return "", apierr.Validation("proximity requires at least 2 terms")
	}
	return fmt.Sprintf("NEAR(%s, %d)", strings.Join(terms, " "), distance), nil
}

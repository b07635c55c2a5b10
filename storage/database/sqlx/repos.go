// Package sqlxrepos implements the domain repositories on PostgreSQL
// through sqlx.
package sqlxrepos

import (
	"strings"

	"github.com/fundisha/backend/core"
)

// orderBy builds an ORDER BY clause from client-supplied orderings.
// Fields not in the repository's column whitelist are dropped; they would
// otherwise be interpolated into the query verbatim.
func orderBy(ordering []core.DBOrdering, allowed map[string]bool, fallback string) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if !allowed[ord.Field] {
			continue
		}
		orderList = append(orderList, ord.String())
	}
	if len(orderList) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

package repositories

import "gorm.io/gorm/clause"

// lockingClause is a row-level FOR UPDATE lock used by the find-or-create
// and append paths so concurrent webhook invocations serialize on the
// open group instead of forking it.
func lockingClause() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

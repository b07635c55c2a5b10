package core

// DBOrdering translates a sort request into an ORDER BY term. Repositories
// are expected to validate Field against their own column set before
// interpolating it.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

package entity

import "fmt"

// Entity defines the contract for database-aware models.
type Entity interface {
	Table() string
}

// Column names a column of entity E. Binding the column to its entity keeps query
// conditions for one table from being applied to another.
type Column[E Entity] string

// Name returns the bare column name.
func (c Column[E]) Name() string {
	return string(c)
}

// QualifiedName returns "table.column".
func (c Column[E]) QualifiedName() string {
	var e E
	return fmt.Sprintf("%s.%s", e.Table(), string(c))
}

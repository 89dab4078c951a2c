package domain

// Actor is the authenticated caller performing an operation.
type Actor struct {
	Name string
	Team Team
	Role string
}

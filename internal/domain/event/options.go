package event

// ListOptions provides filtering options for listing events.
type ListOptions struct {
	RunID *int64
	Type  *Type
	Limit int
}

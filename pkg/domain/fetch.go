package domain

// FieldValuesRequest asks the values backend for the distinct values of one
// or more fields of a stream.
type FieldValuesRequest struct {
	Stream       string
	StreamType   string
	Fields       []string
	TimeRange    TimeRange
	QueryContext string
	Size         int
	TraceID      string
}

// FieldValue is one distinct value and its occurrence count.
type FieldValue struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// FieldValues holds the distinct values of one field.
type FieldValues struct {
	Field  string       `json:"field"`
	Values []FieldValue `json:"values"`
}

package domain

// Row is a single record from an application table, keyed by column name.
// Values carry whatever type the database driver produced (string, int64,
// float64, bool, time.Time, or nil).
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RecordUpdate is one entry in a batch update request.
type RecordUpdate struct {
	ID     string
	Fields Row
}

// BatchResult is the outcome of a committed batch update. Records is nil
// unless the caller asked for the updated records to be echoed back.
type BatchResult struct {
	Updated int
	Records []Row
}

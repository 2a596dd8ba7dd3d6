package platform

import (
	"errors"
	"strings"

	"github.com/rorycl/orderingest/source"
)

// ErrNoPlatformColumn is returned when a dataset has no Platform column.
var ErrNoPlatformColumn = errors.New("dataset has no Platform column")

// Detect returns the schema of the platform declared in the first row of the dataset.
// Every row of a batch is assumed to come from the same platform.
func (r *Registry) Detect(ds *source.Dataset) (Schema, error) {
	if ds == nil || ds.Len() == 0 {
		return Schema{}, source.ErrNoDataRows
	}
	col, ok := ds.Column(PlatformColumn)
	if !ok {
		return Schema{}, ErrNoPlatformColumn
	}
	declared := strings.ToUpper(strings.TrimSpace(ds.Value(0, col)))
	return r.Lookup(declared)
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/sheets"
)

// Appender keeps exported rows in memory. The worker uses it when no
// spreadsheet is configured.
type Appender struct {
	mu   sync.Mutex
	rows []sheets.Row
}

var _ sheets.RowAppender = (*Appender)(nil)

func New() *Appender {
	return &Appender{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (a *Appender) AppendRow(_ context.Context, r sheets.Row) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, r)
	return fmt.Sprintf("mem:%d", len(a.rows)), nil
}

func (a *Appender) Rows() []sheets.Row {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sheets.Row(nil), a.rows...)
}

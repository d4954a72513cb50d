package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	data [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *time.Time:
			*v = row[i].(time.Time)
		case *float64:
			*v = row[i].(float64)
		}
	}
	return nil
}

type captureQuerier struct {
	sql  string
	args []any
	rows *fakeRows
}

func (q *captureQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql = sql
	q.args = args
	if q.rows == nil {
		return &fakeRows{}, nil
	}
	return q.rows, nil
}

func (q *captureQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return nil
}

func TestBalanceRowsFoldsLinesPerBatch(t *testing.T) {
	date := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	q := &captureQuerier{rows: &fakeRows{data: [][]any{
		{"FL-CSR-08-26-0001", date, "ACME Traders", "Cold Room 1", "Potato", "Jute Bag", "B-001", 100.0, 60.0},
	}}}

	rows, err := BalanceRows(context.Background(), q, BalanceFilter{Customer: "ACME Traders"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 40.0, rows[0].Balance())

	// Receipt lines must be folded per (receipt,batch) before the dispatched
	// sum is applied, so a batch split across lines is never debited twice
	// and the rows add up to what BatchBalance reports.
	assert.Contains(t, q.sql, "SUM(l.qty)")
	assert.Contains(t, q.sql, "GROUP BY r.code")
	assert.Equal(t, []any{StatusSubmitted, "ACME Traders"}, q.args)
}

func TestBalanceRowsAppliesFilters(t *testing.T) {
	q := &captureQuerier{}
	from := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	_, err := BalanceRows(context.Background(), q, BalanceFilter{
		Warehouse: "Cold Room 1",
		BatchCode: "B-001",
		FromDate:  from,
	})
	require.NoError(t, err)
	assert.Contains(t, q.sql, "l.warehouse = $2")
	assert.Contains(t, q.sql, "l.batch_code = $3")
	assert.Contains(t, q.sql, "r.receipt_date >= $4")
	assert.Equal(t, []any{StatusSubmitted, "Cold Room 1", "B-001", from}, q.args)
}

package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// NamingQuerier is the subset of pgx query methods needed for allocation.
// Satisfied by both pgx.Tx and *pgxpool.Pool.
type NamingQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BuildSeries composes a naming-series prefix like "FL-CSR-08-26-" from the
// company abbreviation, the document prefix and the document date.
func BuildSeries(abbr, prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%02d-%02d-", abbr, prefix, int(at.Month()), at.Year()%100)
}

// NextName allocates the next code for a series atomically. Run it inside the
// same transaction as the document insert so unused codes roll back with it.
func NextName(ctx context.Context, q NamingQuerier, series string, width int) (string, error) {
	if series == "" {
		return "", fmt.Errorf("shared: naming series required")
	}
	var current int64
	err := q.QueryRow(ctx, `
		INSERT INTO naming_series (series_key, current)
		VALUES ($1, 1)
		ON CONFLICT (series_key)
		DO UPDATE SET current = naming_series.current + 1
		RETURNING current`, series).Scan(&current)
	if err != nil {
		return "", fmt.Errorf("shared: allocate name for %s: %w", series, err)
	}
	if width <= 0 {
		width = 4
	}
	return fmt.Sprintf("%s%0*d", series, width, current), nil
}

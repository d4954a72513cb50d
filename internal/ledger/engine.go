package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// BatchBalance computes received minus dispatched for one batch against one
// receipt. Only submitted documents count on either side. excludeDispatch, when
// non-empty, removes that dispatch from the dispatched sum so a document being
// edited can re-validate against the balance that excludes itself. The result
// is the raw signed value; callers compare it against the requested quantity.
func BatchBalance(ctx context.Context, q Querier, receiptCode, batchCode, excludeDispatch string) (float64, error) {
	if receiptCode == "" || batchCode == "" {
		return 0, nil
	}

	var received float64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.qty), 0)
		FROM receipt_lines l
		JOIN receipts r ON r.code = l.receipt_code
		WHERE l.receipt_code = $1 AND l.batch_code = $2 AND r.status = $3`,
		receiptCode, batchCode, StatusSubmitted).Scan(&received)
	if err != nil {
		return 0, fmt.Errorf("ledger: received qty for %s/%s: %w", receiptCode, batchCode, err)
	}

	var dispatched float64
	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(dl.qty), 0)
		FROM dispatch_lines dl
		JOIN dispatches d ON d.code = dl.dispatch_code
		WHERE dl.receipt_code = $1 AND dl.batch_code = $2 AND d.status = $3
		  AND ($4 = '' OR d.code <> $4)`,
		receiptCode, batchCode, StatusSubmitted, excludeDispatch).Scan(&dispatched)
	if err != nil {
		return 0, fmt.Errorf("ledger: dispatched qty for %s/%s: %w", receiptCode, batchCode, err)
	}

	return received - dispatched, nil
}

// AggregateBalance computes the balance of a batch across every receipt for a
// customer in a warehouse. Used when the same batch arrived on multiple
// receipts.
func AggregateBalance(ctx context.Context, q Querier, customer, warehouse, batchCode string) (float64, error) {
	if customer == "" || warehouse == "" || batchCode == "" {
		return 0, nil
	}

	var balance float64
	err := q.QueryRow(ctx, `
		SELECT (
			SELECT COALESCE(SUM(l.qty), 0)
			FROM receipt_lines l
			JOIN receipts r ON r.code = l.receipt_code
			WHERE r.customer = $1 AND l.warehouse = $2 AND l.batch_code = $3 AND r.status = $4
		) - (
			SELECT COALESCE(SUM(dl.qty), 0)
			FROM dispatch_lines dl
			JOIN dispatches d ON d.code = dl.dispatch_code
			WHERE d.customer = $1 AND dl.warehouse = $2 AND dl.batch_code = $3 AND d.status = $4
		)`, customer, warehouse, batchCode, StatusSubmitted).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ledger: aggregate balance for %s/%s/%s: %w", customer, warehouse, batchCode, err)
	}
	return balance, nil
}

// ReceiptDispatchedTotal sums submitted dispatched bags drawn against a whole
// receipt, regardless of batch. Customer transfers validate their coarse total
// against this.
func ReceiptDispatchedTotal(ctx context.Context, q Querier, receiptCode string) (float64, error) {
	if receiptCode == "" {
		return 0, nil
	}
	var dispatched float64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(dl.qty), 0)
		FROM dispatch_lines dl
		JOIN dispatches d ON d.code = dl.dispatch_code
		WHERE dl.receipt_code = $1 AND d.status = $2`,
		receiptCode, StatusSubmitted).Scan(&dispatched)
	if err != nil {
		return 0, fmt.Errorf("ledger: dispatched total for %s: %w", receiptCode, err)
	}
	return dispatched, nil
}

// ReceiptReferenceCount counts non-cancelled dispatches holding at least one
// line against the receipt. Drafts count too: a receipt cannot be cancelled
// out from under a dispatch still being prepared.
func ReceiptReferenceCount(ctx context.Context, q Querier, receiptCode string) (int64, error) {
	if receiptCode == "" {
		return 0, nil
	}
	var refs int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(DISTINCT d.code)
		FROM dispatch_lines dl
		JOIN dispatches d ON d.code = dl.dispatch_code
		WHERE dl.receipt_code = $1 AND d.status <> $2`,
		receiptCode, StatusCancelled).Scan(&refs)
	if err != nil {
		return 0, fmt.Errorf("ledger: reference count for %s: %w", receiptCode, err)
	}
	return refs, nil
}

// LockReceiptLines takes row locks on the receipt lines for one batch (or the
// whole receipt when batchCode is empty). Taking the lock before re-reading the
// balance serializes concurrent dispatch submissions against the same source,
// closing the check-then-act race.
func LockReceiptLines(ctx context.Context, q Querier, receiptCode, batchCode string) error {
	if receiptCode == "" {
		return ErrMissingKey
	}
	rows, err := q.Query(ctx, `
		SELECT id FROM receipt_lines
		WHERE receipt_code = $1 AND ($2 = '' OR batch_code = $2)
		ORDER BY id
		FOR UPDATE`, receiptCode, batchCode)
	if err != nil {
		return fmt.Errorf("ledger: lock lines %s/%s: %w", receiptCode, batchCode, err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

// BalanceRows resolves receipt lines with dispatched quantities for reporting.
// Lines are grouped per (receipt,batch) before the dispatched sum is applied,
// so the rows add up to the same balance BatchBalance computes even when a
// receipt carries the same batch on several lines.
func BalanceRows(ctx context.Context, q Querier, filter BalanceFilter) ([]BalanceRow, error) {
	query := `
		SELECT r.code, r.receipt_date, r.customer, l.warehouse,
		       l.goods_item, l.item_group, l.batch_code, SUM(l.qty) AS in_qty,
		       COALESCE((
		           SELECT SUM(dl.qty)
		           FROM dispatch_lines dl
		           JOIN dispatches d ON d.code = dl.dispatch_code
		           WHERE d.status = $1 AND dl.receipt_code = r.code AND dl.batch_code = l.batch_code
		       ), 0) AS out_qty
		FROM receipts r
		JOIN receipt_lines l ON l.receipt_code = r.code
		WHERE r.status = $1`
	args := []any{StatusSubmitted}

	add := func(clause string, value any) {
		args = append(args, value)
		query += " AND " + clause + "$" + strconv.Itoa(len(args))
	}
	if filter.Customer != "" {
		add("r.customer = ", filter.Customer)
	}
	if filter.Warehouse != "" {
		add("l.warehouse = ", filter.Warehouse)
	}
	if filter.GoodsItem != "" {
		add("l.goods_item = ", filter.GoodsItem)
	}
	if filter.ItemGroup != "" {
		add("l.item_group = ", filter.ItemGroup)
	}
	if filter.BatchCode != "" {
		add("l.batch_code = ", filter.BatchCode)
	}
	if !filter.FromDate.IsZero() {
		add("r.receipt_date >= ", filter.FromDate)
	}
	if !filter.ToDate.IsZero() {
		add("r.receipt_date <= ", filter.ToDate)
	}
	query += `
		GROUP BY r.code, r.receipt_date, r.customer, l.warehouse,
		         l.goods_item, l.item_group, l.batch_code
		ORDER BY r.receipt_date, r.code, l.batch_code`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: balance rows: %w", err)
	}
	defer rows.Close()

	var result []BalanceRow
	for rows.Next() {
		var row BalanceRow
		if err := rows.Scan(&row.ReceiptCode, &row.ReceiptDate, &row.Customer, &row.Warehouse,
			&row.GoodsItem, &row.ItemGroup, &row.BatchCode, &row.InQty, &row.OutQty); err != nil {
			return nil, fmt.Errorf("ledger: scan balance row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ActiveBatchCount counts batches that still hold a positive balance.
func ActiveBatchCount(ctx context.Context, q Querier) (int64, error) {
	var count int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT c.batch_code
			FROM (
				SELECT l.batch_code, l.qty AS qty
				FROM receipt_lines l
				JOIN receipts r ON r.code = l.receipt_code
				WHERE r.status = $1
				UNION ALL
				SELECT dl.batch_code, -dl.qty AS qty
				FROM dispatch_lines dl
				JOIN dispatches d ON d.code = dl.dispatch_code
				WHERE d.status = $1
			) c
			GROUP BY c.batch_code
			HAVING SUM(c.qty) > 0
		) active`, StatusSubmitted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ledger: active batch count: %w", err)
	}
	return count, nil
}

// MonthlyFlows aggregates inbound and outbound bags per month over a window.
func MonthlyFlows(ctx context.Context, q Querier, from, to time.Time) ([]MonthlyFlow, error) {
	flows := map[time.Time]*MonthlyFlow{}

	collect := func(query string, out bool) error {
		rows, err := q.Query(ctx, query, StatusSubmitted, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var month time.Time
			var qty float64
			if err := rows.Scan(&month, &qty); err != nil {
				return err
			}
			f, ok := flows[month]
			if !ok {
				f = &MonthlyFlow{Month: month}
				flows[month] = f
			}
			if out {
				f.OutQty += qty
			} else {
				f.InQty += qty
			}
		}
		return rows.Err()
	}

	inQ := `
		SELECT date_trunc('month', r.receipt_date), COALESCE(SUM(l.qty), 0)
		FROM receipts r JOIN receipt_lines l ON l.receipt_code = r.code
		WHERE r.status = $1 AND r.receipt_date BETWEEN $2 AND $3
		GROUP BY 1`
	outQ := `
		SELECT date_trunc('month', d.dispatch_date), COALESCE(SUM(dl.qty), 0)
		FROM dispatches d JOIN dispatch_lines dl ON dl.dispatch_code = d.code
		WHERE d.status = $1 AND d.dispatch_date BETWEEN $2 AND $3
		GROUP BY 1`
	if err := collect(inQ, false); err != nil {
		return nil, fmt.Errorf("ledger: monthly inflow: %w", err)
	}
	if err := collect(outQ, true); err != nil {
		return nil, fmt.Errorf("ledger: monthly outflow: %w", err)
	}

	result := make([]MonthlyFlow, 0, len(flows))
	for _, f := range flows {
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Month.Before(result[j].Month) })
	return result, nil
}

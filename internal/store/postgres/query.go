package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// listQuery appends the time range, ordering and pagination clauses of opts
// to a query whose WHERE clause already exists. args holds the placeholders
// bound so far.
func listQuery(base string, args []any, timeCol string, opts domain.ListOpts) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	next := len(args) + 1

	if opts.Since != nil {
		fmt.Fprintf(&b, " AND %s >= $%d", timeCol, next)
		args = append(args, *opts.Since)
		next++
	}
	if opts.Until != nil {
		fmt.Fprintf(&b, " AND %s <= $%d", timeCol, next)
		args = append(args, *opts.Until)
		next++
	}

	fmt.Fprintf(&b, " ORDER BY %s DESC, id DESC", timeCol)

	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", next)
		args = append(args, opts.Limit)
		next++
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", next)
		args = append(args, opts.Offset)
	}
	return b.String(), args
}

// Lamport amounts are stored as NUMERIC(20) so the full uint64 range
// survives; they cross the wire as decimal text.

func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseNumeric(col, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgres: parse %s %q: %w", col, s, err)
	}
	return v, nil
}

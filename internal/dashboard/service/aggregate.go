package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"go.uber.org/zap"
)

// column is a SQL expression selected under an alias.
type column struct {
	Expr  string
	Alias string
}

type predicate struct {
	SQL  string
	Args []any
}

// keyWindow restricts a date key column to [Start, End]. Dropping it widens a
// query to all time.
type keyWindow struct {
	Column string
	Start  calendar.DateKey
	End    calendar.DateKey
}

// GroupSpec describes one grouped aggregation over the warehouse. With no
// Groups the query yields a single row of measures.
type GroupSpec struct {
	Metric   string
	From     string
	Groups   []column
	Measures []column
	Where    []predicate
	Window   *keyWindow
	OrderBy  string
	Limit    int
	// ShareOf names a measure alias to normalize into a percentage of the
	// returned rows' total.
	ShareOf string
}

type aggregateRow struct {
	Groups   []string
	Measures []float64
	Share    float64
}

func (r aggregateRow) group(i int) string {
	if i < len(r.Groups) {
		return r.Groups[i]
	}
	return ""
}

func (r aggregateRow) measure(i int) float64 {
	if i < len(r.Measures) {
		return r.Measures[i]
	}
	return 0
}

func (s *Service) groupedAggregate(ctx context.Context, spec GroupSpec) ([]aggregateRow, error) {
	selects := make([]string, 0, len(spec.Groups)+len(spec.Measures))
	groupBy := make([]string, 0, len(spec.Groups))
	for _, g := range spec.Groups {
		selects = append(selects, g.Expr+" AS "+g.Alias)
		groupBy = append(groupBy, g.Expr)
	}
	shareIdx := -1
	for i, m := range spec.Measures {
		selects = append(selects, m.Expr+" AS "+m.Alias)
		if spec.ShareOf != "" && m.Alias == spec.ShareOf {
			shareIdx = i
		}
	}

	q := s.db.WithContext(ctx).Table(spec.From).Select(strings.Join(selects, ", "))
	for _, p := range spec.Where {
		q = q.Where(p.SQL, p.Args...)
	}
	if spec.Window != nil {
		q = q.Where(spec.Window.Column+" BETWEEN ? AND ?", spec.Window.Start.Int(), spec.Window.End.Int())
	}
	if len(groupBy) > 0 {
		q = q.Group(strings.Join(groupBy, ", "))
	}
	if spec.OrderBy != "" {
		q = q.Order(spec.OrderBy)
	}
	if spec.Limit > 0 {
		q = q.Limit(spec.Limit)
	}

	rows, err := q.Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]aggregateRow, 0)
	for rows.Next() {
		groups := make([]sql.NullString, len(spec.Groups))
		measures := make([]sql.NullFloat64, len(spec.Measures))
		dest := make([]any, 0, len(groups)+len(measures))
		for i := range groups {
			dest = append(dest, &groups[i])
		}
		for i := range measures {
			dest = append(dest, &measures[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := aggregateRow{
			Groups:   make([]string, len(groups)),
			Measures: make([]float64, len(measures)),
		}
		for i, g := range groups {
			row.Groups[i] = g.String
		}
		for i, m := range measures {
			if m.Valid {
				row.Measures[i] = m.Float64
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if shareIdx >= 0 {
		applyShares(out, shareIdx)
	}
	return out, nil
}

// widenedAggregate runs spec over its window and, when that yields nothing,
// again over all time.
func (s *Service) widenedAggregate(ctx context.Context, spec GroupSpec) ([]aggregateRow, error) {
	rows, err := s.groupedAggregate(ctx, spec)
	if err != nil || len(rows) > 0 || spec.Window == nil {
		return rows, err
	}
	fields := append([]zap.Field{zapMetric(spec.Metric)}, zapWindow(spec.Window.Start, spec.Window.End)...)
	s.log.Debug("window empty, widening to all time", fields...)
	spec.Window = nil
	return s.groupedAggregate(ctx, spec)
}

// applyShares sets each row's Share to its percentage of the column total,
// rounded to hundredths with the largest remainder method so the shares of a
// non-empty total add up to exactly 100.
func applyShares(rows []aggregateRow, idx int) {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(decimal.NewFromFloat(r.Measures[idx]))
	}
	if total.Sign() <= 0 {
		for i := range rows {
			rows[i].Share = 0
		}
		return
	}

	hundredths := make([]int64, len(rows))
	remainders := make([]decimal.Decimal, len(rows))
	assigned := int64(0)
	for i, r := range rows {
		exact := decimal.NewFromFloat(r.Measures[idx]).Mul(decimal.NewFromInt(10000)).Div(total)
		floor := exact.Floor()
		hundredths[i] = floor.IntPart()
		remainders[i] = exact.Sub(floor)
		assigned += hundredths[i]
	}

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	for left, k := 10000-assigned, 0; left > 0 && k < len(order); left, k = left-1, k+1 {
		hundredths[order[k]]++
	}

	for i := range rows {
		rows[i].Share = decimal.New(hundredths[i], -2).InexactFloat64()
	}
}

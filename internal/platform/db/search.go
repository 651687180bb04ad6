package db

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
)

// FilterType describes how a query parameter maps onto a column.
type FilterType int

const (
	FilterExact FilterType = iota // exact match on the column
	FilterText                    // case-insensitive contains
	FilterDate                    // date match, supports gt/lt/ge/le prefixes
	FilterRef                     // foreign key match
)

// FilterConfig maps one query parameter to its database column.
type FilterConfig struct {
	Type   FilterType
	Column string
}

// ListQuery builds SQL WHERE clauses from request filter parameters.
// It encapsulates the list/count pattern shared by the domain repositories.
type ListQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

func NewListQuery(table, cols string) *ListQuery {
	return &ListQuery{table: table, cols: cols, idx: 1}
}

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *ListQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// ApplyFilter applies a single filter parameter using the config.
func (q *ListQuery) ApplyFilter(config FilterConfig, value string) {
	switch config.Type {
	case FilterText:
		q.where += fmt.Sprintf(" AND %s ILIKE $%d", config.Column, q.idx)
		q.args = append(q.args, "%"+value+"%")
		q.idx++
	case FilterDate:
		op := "="
		for prefix, sqlOp := range datePrefixes {
			if strings.HasPrefix(value, prefix) {
				op = sqlOp
				value = value[len(prefix):]
				break
			}
		}
		q.where += fmt.Sprintf(" AND %s %s $%d", config.Column, op, q.idx)
		q.args = append(q.args, value)
		q.idx++
	default:
		q.where += fmt.Sprintf(" AND %s = $%d", config.Column, q.idx)
		q.args = append(q.args, value)
		q.idx++
	}
}

var datePrefixes = map[string]string{
	"ge": ">=",
	"le": "<=",
	"gt": ">",
	"lt": "<",
}

// ApplyFilters applies all matching filter parameters from the given map.
// Parameters without a config entry are ignored.
func (q *ListQuery) ApplyFilters(params map[string]string, configs map[string]FilterConfig) {
	for name, value := range params {
		if config, ok := configs[name]; ok {
			q.ApplyFilter(config, value)
		}
	}
}

// ApplySort processes a sort parameter and sets ORDER BY using the config
// column mappings. Values are comma-separated field names, "-" prefixed
// for descending. Falls back to defaultOrder when nothing matches.
func (q *ListQuery) ApplySort(sortParam, defaultOrder string, configs map[string]FilterConfig) {
	if sortParam == "" {
		q.orderBy = defaultOrder
		return
	}
	var parts []string
	for _, field := range strings.Split(sortParam, ",") {
		field = strings.TrimSpace(field)
		desc := strings.HasPrefix(field, "-")
		if desc {
			field = field[1:]
		}
		if config, ok := configs[field]; ok {
			dir := " ASC"
			if desc {
				dir = " DESC"
			}
			parts = append(parts, config.Column+dir)
		}
	}
	if len(parts) > 0 {
		q.orderBy = strings.Join(parts, ", ")
	} else {
		q.orderBy = defaultOrder
	}
}

func (q *ListQuery) OrderBy(orderBy string) { q.orderBy = orderBy }

// CountSQL returns the count query SQL.
func (q *ListQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

func (q *ListQuery) CountArgs() []interface{} { return q.args }

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *ListQuery) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

func (q *ListQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// ExtractFilters pulls filter parameters off the query string, skipping
// paging and control parameters handled elsewhere.
func ExtractFilters(c echo.Context) map[string]string {
	params := map[string]string{}
	for k, v := range c.QueryParams() {
		switch k {
		case "limit", "offset", "sort", "format", "refresh", "tenant_id":
			continue
		}
		if len(v) == 0 {
			continue
		}
		params[k] = v[0]
	}
	return params
}

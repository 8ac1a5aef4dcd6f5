// Package pagination parses list query parameters and encodes offset page tokens.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPageSize    = 50
	DefaultMaxPageSize = 100

	maxFilterValue = 512
)

// Operator is a comparison accepted in filter=field<op>value.
type Operator string

const (
	OperatorEqual        Operator = "=="
	OperatorGreaterThan  Operator = ">"
	OperatorLessThan     Operator = "<"
	OperatorGreaterEqual Operator = ">="
	OperatorLessEqual    Operator = "<="
)

// two-character operators are matched before their one-character prefixes
var operatorsByLength = []Operator{OperatorGreaterEqual, OperatorLessEqual, OperatorEqual, OperatorGreaterThan, OperatorLessThan}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid page_size")
	ErrInvalidFilter    = errors.New("pagination: invalid filter")
	ErrInvalidPageToken = errors.New("pagination: invalid page_token")
)

// Filter is one parsed filter predicate.
type Filter struct {
	Field string
	Op    Operator
	Value string
}

// Cursor is the decoded page token.
type Cursor struct {
	Offset int `json:"o"`
}

// Params is the parsed paging and filtering state of a list request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
	Filters   []Filter
}

// Options describe what a list endpoint accepts. A field mapped to no operators accepts all.
type Options struct {
	DefaultPageSize     int
	MaxPageSize         int
	AllowedFilterFields map[string][]Operator
}

// FromRequest parses r's query string.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads page_size, page_token and repeated filter values.
func Parse(values url.Values, opts Options) (Params, error) {
	size, err := opts.pageSize(values.Get("page_size"))
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: size}

	if token := strings.TrimSpace(values.Get("page_token")); token != "" {
		if params.Cursor, err = DecodeToken(token); err != nil {
			return Params{}, err
		}
		params.PageToken = token
	}

	for _, raw := range values["filter"] {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		filter, err := opts.filter(raw)
		if err != nil {
			return Params{}, err
		}
		params.Filters = append(params.Filters, filter)
	}
	return params, nil
}

func (o Options) pageSize(raw string) (int, error) {
	limit := o.MaxPageSize
	if limit <= 0 {
		limit = DefaultMaxPageSize
	}
	size := o.DefaultPageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if raw = strings.TrimSpace(raw); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
		}
		if n <= 0 {
			return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
		}
		size = n
	}
	return min(size, limit), nil
}

func (o Options) filter(raw string) (Filter, error) {
	raw = strings.TrimSpace(raw)
	var f Filter
	for _, op := range operatorsByLength {
		idx := strings.Index(raw, string(op))
		if idx <= 0 {
			continue
		}
		f = Filter{
			Field: strings.TrimSpace(raw[:idx]),
			Op:    op,
			Value: cleanFilterValue(raw[idx+len(op):]),
		}
		break
	}
	if f.Op == "" || !validFieldName(f.Field) {
		return Filter{}, fmt.Errorf("%w: expected field<op>value, got %q", ErrInvalidFilter, raw)
	}
	if f.Value == "" {
		return Filter{}, fmt.Errorf("%w: empty value for %q", ErrInvalidFilter, f.Field)
	}
	ops, ok := o.AllowedFilterFields[f.Field]
	if !ok {
		return Filter{}, fmt.Errorf("%w: field %q is not filterable", ErrInvalidFilter, f.Field)
	}
	if len(ops) > 0 && !containsOperator(ops, f.Op) {
		return Filter{}, fmt.Errorf("%w: operator %q not allowed for %q", ErrInvalidFilter, f.Op, f.Field)
	}
	return f, nil
}

func containsOperator(ops []Operator, op Operator) bool {
	for _, candidate := range ops {
		if candidate == op {
			return true
		}
	}
	return false
}

func cleanFilterValue(value string) string {
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	value = strings.Join(strings.Fields(value), " ")
	if len(value) > maxFilterValue {
		value = value[:maxFilterValue]
	}
	return value
}

func validFieldName(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		if !(r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// Must fills in the default page size.
func Must(params Params) Params {
	if params.PageSize <= 0 {
		params.PageSize = DefaultPageSize
	}
	return params
}

// Lookup returns the filters on field in query order.
func (p Params) Lookup(field string) []Filter {
	var out []Filter
	for _, f := range p.Filters {
		if f.Field == field {
			out = append(out, f)
		}
	}
	return out
}

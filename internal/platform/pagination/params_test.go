package pagination

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.Cursor.Offset != 0 || params.PageToken != "" {
		t.Fatalf("expected empty cursor, got %#v", params)
	}
}

func TestParsePageSize(t *testing.T) {
	values := url.Values{}
	values.Set("page_size", "30")
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected 30 got %d", params.PageSize)
	}

	values.Set("page_size", "400")
	params, err = Parse(values, Options{MaxPageSize: 200})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 200 {
		t.Fatalf("expected clamp to 200 got %d", params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		values := url.Values{}
		values.Set("page_size", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("page_size %q: expected ErrInvalidPageSize got %v", raw, err)
		}
	}
}

func TestParsePageToken(t *testing.T) {
	token, err := EncodeToken(Cursor{Offset: 40})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	values := url.Values{}
	values.Set("page_token", token)
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Cursor.Offset != 40 {
		t.Fatalf("expected offset 40 got %d", params.Cursor.Offset)
	}

	values.Set("page_token", "!!!invalid!!!")
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken got %v", err)
	}
}

func TestParseFilterValueNormalised(t *testing.T) {
	values := url.Values{}
	values.Add("filter", `created_at>= "2026-01-01T00:00:00Z" `)
	values.Add("filter", "")
	params, err := Parse(values, Options{AllowedFilterFields: map[string][]Operator{"created_at": nil}})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []Filter{{Field: "created_at", Op: OperatorGreaterEqual, Value: "2026-01-01T00:00:00Z"}}
	if !reflect.DeepEqual(params.Filters, want) {
		t.Fatalf("expected %#v got %#v", want, params.Filters)
	}
}

func TestParseFilters(t *testing.T) {
	values := url.Values{}
	values.Add("filter", "status==CONFIRMED")
	values.Add("filter", "total>=100.50")
	values.Add("filter", "total<=500")
	opts := Options{AllowedFilterFields: map[string][]Operator{
		"status": {OperatorEqual},
		"total":  {OperatorGreaterEqual, OperatorLessEqual},
	}}
	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	expected := []Filter{
		{Field: "status", Op: OperatorEqual, Value: "CONFIRMED"},
		{Field: "total", Op: OperatorGreaterEqual, Value: "100.50"},
		{Field: "total", Op: OperatorLessEqual, Value: "500"},
	}
	if !reflect.DeepEqual(params.Filters, expected) {
		t.Fatalf("expected %#v got %#v", expected, params.Filters)
	}
	if got := params.Lookup("total"); len(got) != 2 {
		t.Fatalf("expected two total filters got %#v", got)
	}
}

func TestParseFiltersInvalid(t *testing.T) {
	opts := Options{AllowedFilterFields: map[string][]Operator{"status": {OperatorEqual}}}
	for _, raw := range []string{"status>CONFIRMED", "unknown==value", "status", "status==", "bad field==x"} {
		values := url.Values{}
		values.Add("filter", raw)
		if _, err := Parse(values, opts); !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("filter %q: expected ErrInvalidFilter got %v", raw, err)
		}
	}
}

func TestWindowAndNextToken(t *testing.T) {
	limit, offset, err := Window(0, "")
	if err != nil || limit != DefaultPageSize || offset != 0 {
		t.Fatalf("unexpected window %d %d %v", limit, offset, err)
	}

	next := NextToken(0, 10, 10)
	if next == "" {
		t.Fatal("expected next token for full page")
	}
	limit, offset, err = Window(500, next)
	if err != nil {
		t.Fatalf("Window returned error: %v", err)
	}
	if limit != DefaultMaxPageSize || offset != 10 {
		t.Fatalf("expected clamp and offset 10 got %d %d", limit, offset)
	}
	if NextToken(10, 10, 3) != "" {
		t.Fatal("short page must not produce a token")
	}
}

func TestDecodeTokenInvalid(t *testing.T) {
	if _, err := DecodeToken("not-base64"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken got %v", err)
	}
}

func TestFromRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "/?page_size=20", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != 20 {
		t.Fatalf("expected 20 got %d", params.PageSize)
	}
}

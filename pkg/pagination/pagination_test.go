package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextFor("/"))

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(contextFor("/?limit=50&offset=10"))

	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := FromContext(contextFor("/?limit=500"))

	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	p := FromContext(contextFor("/?offset=-5"))

	if p.Offset != 0 {
		t.Errorf("expected offset 0 for negative input, got %d", p.Offset)
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 10, 2, 0)

	if resp.Total != 10 {
		t.Errorf("expected total 10, got %d", resp.Total)
	}
	if !resp.HasMore {
		t.Error("expected HasMore to be true")
	}

	resp = NewResponse([]string{"a"}, 3, 2, 2)
	if resp.HasMore {
		t.Error("expected HasMore to be false on the last page")
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	resp := Page(items, Params{Limit: 2, Offset: 2})
	page := resp.Data.([]int)
	if len(page) != 2 || page[0] != 3 || page[1] != 4 {
		t.Errorf("expected [3 4], got %v", page)
	}
	if resp.Total != 5 || !resp.HasMore {
		t.Errorf("unexpected response: %+v", resp)
	}

	page[0] = 99
	if items[2] != 3 {
		t.Error("expected page to be a copy")
	}
}

func TestPage_PastEnd(t *testing.T) {
	resp := Page([]string{"a"}, Params{Limit: 10, Offset: 5})
	page := resp.Data.([]string)
	if page == nil || len(page) != 0 {
		t.Errorf("expected empty non-nil page, got %v", page)
	}
	if resp.HasMore {
		t.Error("expected HasMore to be false")
	}
}

func TestParams_HasNext(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		total  int
		want   bool
	}{
		{"first page with more", Params{Limit: 10, Offset: 0}, 25, true},
		{"exact fit", Params{Limit: 10, Offset: 10}, 20, false},
		{"empty", Params{Limit: 10, Offset: 0}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.HasNext(tt.total); got != tt.want {
				t.Errorf("HasNext(%d) = %v, want %v", tt.total, got, tt.want)
			}
		})
	}
}

func TestParams_HasPrevious(t *testing.T) {
	if (Params{Limit: 10, Offset: 0}).HasPrevious() {
		t.Error("expected no previous page at offset 0")
	}
	if !(Params{Limit: 10, Offset: 10}).HasPrevious() {
		t.Error("expected previous page at offset 10")
	}
}

package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
	"github.com/angelmondragon/pullstream-backend/pkg/pagination"
)

type createBody struct {
	Freelancer      string `json:"freelancer" validate:"required,max=256,identity"`
	DurationSeconds int64  `json:"duration_seconds" validate:"gt=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"freelancer":"bob","duration_seconds":60}`},
		{name: "empty", body: ``, wantErr: true},
		{name: "unknown field", body: `{"freelancer":"bob","duration_seconds":60,"x":1}`, wantErr: true},
		{name: "missing freelancer", body: `{"duration_seconds":60}`, wantErr: true, field: "freelancer"},
		{name: "identity with space", body: `{"freelancer":"bob smith","duration_seconds":60}`, wantErr: true, field: "freelancer"},
		{name: "identity with control char", body: `{"freelancer":"bob\u0007","duration_seconds":60}`, wantErr: true, field: "freelancer"},
		{name: "zero duration", body: `{"freelancer":"bob","duration_seconds":0}`, wantErr: true, field: "duration_seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest createBody
			err := DecodeJSONBody(req, &dest)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.field == "" {
				return
			}
			details, ok := pkgerrors.As(err).Details().(map[string]string)
			if !ok {
				t.Fatalf("expected field details, got %#v", pkgerrors.As(err).Details())
			}
			if _, ok := details[tc.field]; !ok {
				t.Fatalf("expected detail for %s, got %v", tc.field, details)
			}
		})
	}
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage(httptest.NewRequest(http.MethodGet, "/?limit=10&cursor=%20abc%20", nil))
	if err != nil || page.Limit != 10 || page.Cursor != "abc" {
		t.Fatalf("page=%+v err=%v", page, err)
	}

	page, err = ParsePage(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil || page.Limit != pagination.DefaultLimit || page.Cursor != "" {
		t.Fatalf("expected defaults, got %+v err=%v", page, err)
	}

	for _, query := range []string{"limit=x", "limit=0", "limit=1000"} {
		if _, err := ParsePage(httptest.NewRequest(http.MethodGet, "/?"+query, nil)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", query, err)
		}
	}
}

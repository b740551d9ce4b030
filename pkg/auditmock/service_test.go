package auditmock

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-mocks/pkg/server"
)

func postAudit(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/audit", strings.NewReader(body))
	rec := httptest.NewRecorder()
	New(server.NewMetrics(), nil).Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	New(nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"audit"}`, rec.Body.String())
}

func TestAuditEndpoint(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unsafe with custom message",
			body: `{"content":"This is BAD content","unhealthy_words":["bad","worse"],"custom_error_message":"blocked"}`,
			want: `{"is_safe":false,"flagged_words":["bad"],"error_message":"blocked"}`,
		},
		{
			name: "unsafe without custom message",
			body: `{"content":"a class act","unhealthy_words":["class","act","class"]}`,
			want: `{"is_safe":false,"flagged_words":["act","class"],"error_message":null}`,
		},
		{
			name: "safe ignores custom message",
			body: `{"content":"classic","unhealthy_words":["class"],"custom_error_message":"blocked"}`,
			want: `{"is_safe":true,"flagged_words":[],"error_message":null}`,
		},
		{
			name: "empty word list",
			body: `{"content":"anything","unhealthy_words":[]}`,
			want: `{"is_safe":true,"flagged_words":[],"error_message":null}`,
		},
		{
			name: "camelCase aliases",
			body: `{"content":"drop table users","unhealthyWords":["TABLE"],"customErrorMessage":"sql"}`,
			want: `{"is_safe":false,"flagged_words":["TABLE"],"error_message":"sql"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postAudit(t, tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestAuditValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		detail string
	}{
		{name: "missing content", body: `{"unhealthy_words":["x"]}`, status: http.StatusUnprocessableEntity, detail: "content is required"},
		{name: "missing words", body: `{"content":"x"}`, status: http.StatusUnprocessableEntity, detail: "unhealthy_words is required"},
		{name: "null words", body: `{"content":"x","unhealthy_words":null}`, status: http.StatusUnprocessableEntity, detail: "unhealthy_words is required"},
		{name: "malformed", body: `{"content":`, status: http.StatusBadRequest},
		{name: "wrong type", body: `{"content":1,"unhealthy_words":[]}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postAudit(t, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			if tt.detail != "" {
				assert.JSONEq(t, `{"detail":"`+tt.detail+`"}`, rec.Body.String())
			}
		})
	}
}

func TestAuditMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	New(nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

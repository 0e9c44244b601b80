package incident

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestCreateIncident_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "missing title",
			body:       `{"service":"payments","severity":"critical"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing severity",
			body:       `{"title":"db down","service":"payments"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid severity",
			body:       `{"title":"db down","service":"payments","severity":"extreme"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid JSON",
			body:       `{bad}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
		},
	}

	h := NewHandler(nil, nil)
	router := chi.NewRouter()
	router.Mount("/incidents", h.Routes())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/incidents", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestGetIncident_InvalidID(t *testing.T) {
	h := NewHandler(nil, nil)
	router := chi.NewRouter()
	router.Mount("/incidents", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/incidents/not-a-uuid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestUpdateState_InvalidEnum(t *testing.T) {
	h := NewHandler(nil, nil)
	router := chi.NewRouter()
	router.Mount("/incidents", h.Routes())

	id := "00000000-0000-0000-0000-000000000001"
	r := httptest.NewRequest(http.MethodPatch, "/incidents/"+id+"/state", strings.NewReader(`{"state":"panicking"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body = %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestMerge_InvalidSourceID(t *testing.T) {
	h := NewHandler(nil, nil)
	router := chi.NewRouter()
	router.Mount("/incidents", h.Routes())

	id := "00000000-0000-0000-0000-000000000001"
	r := httptest.NewRequest(http.MethodPost, "/incidents/"+id+"/merge", strings.NewReader(`{"source_id":"not-a-uuid"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body = %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

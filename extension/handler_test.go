package extension

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/store/memory"
)

func TestHandlerServesUnderBasePath(t *testing.T) {
	eng := escrow.New(memory.New(), escrow.WithGenesis(escrow.Genesis{Admin: "admin", Treasury: "treasury"}))
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Stop() })

	tests := []struct {
		basePath string
		path     string
		want     int
	}{
		{"/escrow", "/escrow/healthz", http.StatusOK},
		{"/escrow/", "/escrow/v1/stats", http.StatusOK},
		{"/escrow", "/healthz", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.basePath+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newHandler(tt.basePath, eng).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

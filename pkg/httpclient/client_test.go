package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientHeaders(t *testing.T) {
	tests := []struct {
		name       string
		clientType ClientType
		wantAccept string
	}{
		{"api", APIClient, "application/json"},
		{"image", ImageClient, "image/webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUA, gotAccept string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUA = r.Header.Get("User-Agent")
				gotAccept = r.Header.Get("Accept")
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := NewClient(tt.clientType, "catalog-sync-test/1.0")
			resp, err := client.Get(context.Background(), server.URL)
			if err != nil {
				t.Fatalf("Get returned error: %v", err)
			}
			resp.Body.Close()

			if gotUA != "catalog-sync-test/1.0" {
				t.Errorf("User-Agent = %q", gotUA)
			}
			if gotAccept != tt.wantAccept {
				t.Errorf("Accept = %q, want %q", gotAccept, tt.wantAccept)
			}
		})
	}
}

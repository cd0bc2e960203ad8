package geoloc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLookupShortCircuitsPrivateAddresses(t *testing.T) {
	t.Parallel()
	// Pointed at a dead endpoint: any network call would error loudly,
	// so Unknown here proves the short-circuit.
	c := NewWithBase("http://127.0.0.1:1")

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.5", "not-an-ip", ""} {
		if got := c.Lookup(context.Background(), ip); got != Unknown {
			t.Fatalf("ip %q resolved to %+v", ip, got)
		}
	}
}

func TestLookupParsesResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/203.0.113.9" {
			t.Errorf("path %q", r.URL.Path)
		}
		w.Write([]byte(`{"status":"success","countryCode":"FR","lat":48.85,"lon":2.35}`))
	}))
	defer srv.Close()

	c := NewWithBase(srv.URL)
	got := c.Lookup(context.Background(), "203.0.113.9")
	if got.Country != "fr" {
		t.Fatalf("country %q", got.Country)
	}
	if got.Lat == 0 || got.Lon == 0 {
		t.Fatalf("coordinates %+v", got)
	}
}

func TestLookupFailureReturnsUnknown(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail"}`))
	}))
	defer srv.Close()

	c := NewWithBase(srv.URL)
	if got := c.Lookup(context.Background(), "203.0.113.9"); got != Unknown {
		t.Fatalf("failed lookup resolved to %+v", got)
	}
}

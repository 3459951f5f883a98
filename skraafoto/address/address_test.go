package address

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/go-skraafoto/skraafoto/fetch"
)

func testAddressClient(searchURL, addressURL string) *Client {
	return NewClient("secret",
		WithSearchBaseURL(searchURL),
		WithAddressBaseURL(addressURL),
		WithRetryPolicy(fetch.Policy{MaxAttempts: 1, Delay: 0}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

const husnummerPayload = `[
	{
		"vejnavn": "Rentemestervej",
		"husnummertekst": "8",
		"postnummer": "2400",
		"visningstekst": "Rentemestervej 8, København NV",
		"geometri": {"coordinates": [[722000.1, 6178000.2]]}
	},
	{
		"vejnavn": "Rentemestervej",
		"husnummertekst": "8A",
		"postnummer": "2400",
		"visningstekst": "Rentemestervej 8A, København NV",
		"geometri": {"coordinates": [[722010.5, 6178020.7]]}
	}
]`

func TestAutocomplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/husnummer" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("token"); got != "secret" {
			t.Fatalf("expected token header, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("q") != "rentemestervej 8" {
			t.Fatalf("unexpected query %q", q.Get("q"))
		}
		if q.Get("limit") != "100" || q.Get("srid") != "25832" {
			t.Fatalf("unexpected parameters: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, husnummerPayload)
	}))
	defer server.Close()

	client := testAddressClient(server.URL, server.URL)
	suggestions, err := client.Autocomplete(context.Background(), "rentemestervej 8")
	if err != nil {
		t.Fatalf("Autocomplete returned error: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	first := suggestions[0]
	if first.Address.Road != "Rentemestervej" || first.Address.HouseNumber != "8" || first.Address.PostalCode != "2400" {
		t.Fatalf("unexpected address: %+v", first.Address)
	}
	if first.Label != "Rentemestervej 8, København NV, 2400" {
		t.Fatalf("unexpected label %q", first.Label)
	}
}

func TestResolveCoordinatesExactMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "99" {
			t.Fatalf("unexpected limit %q", got)
		}
		fmt.Fprint(w, husnummerPayload)
	}))
	defer server.Close()

	client := testAddressClient(server.URL, server.URL)
	coord, err := client.ResolveCoordinates(context.Background(), Address{
		Road:        "Rentemestervej",
		HouseNumber: "8A",
		PostalCode:  "2400",
	})
	if err != nil {
		t.Fatalf("ResolveCoordinates returned error: %v", err)
	}
	// 8A must not be shadowed by the earlier partial match on 8.
	if coord.X != 722010.5 || coord.Y != 6178020.7 {
		t.Fatalf("unexpected coordinate %+v", coord)
	}
}

func TestResolveCoordinatesNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, husnummerPayload)
	}))
	defer server.Close()

	client := testAddressClient(server.URL, server.URL)
	_, err := client.ResolveCoordinates(context.Background(), Address{
		Road:        "Rentemestervej",
		HouseNumber: "99",
		PostalCode:  "2400",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWithinPolygon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("srid") != "25832" || q.Get("struktur") != "mini" {
			t.Fatalf("unexpected parameters: %s", r.URL.RawQuery)
		}
		// The ring was open; the client must close it.
		want := "[[[1,2],[3,2],[3,4],[1,2]]]"
		if got := q.Get("polygon"); got != want {
			t.Fatalf("expected polygon %s, got %s", want, got)
		}
		fmt.Fprint(w, `[{"id":"0a3f","betegnelse":"Testvej 1, 2400 København NV","x":722001.5,"y":6178002.25,"vejnavn":"Testvej","husnr":"1","postnr":"2400"}]`)
	}))
	defer server.Close()

	client := testAddressClient(server.URL, server.URL)
	records, err := client.WithinPolygon(context.Background(), [][2]float64{{1, 2}, {3, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("WithinPolygon returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.RoadName != "Testvej" || rec.HouseNumber != "1" || rec.PostalCode != "2400" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.X != 722001.5 || rec.Y != 6178002.25 {
		t.Fatalf("unexpected coordinates (%v, %v)", rec.X, rec.Y)
	}
}

func TestWithinPolygonRejectsDegenerateRing(t *testing.T) {
	client := testAddressClient("http://unused", "http://unused")
	if _, err := client.WithinPolygon(context.Background(), [][2]float64{{1, 2}, {3, 4}}); err == nil {
		t.Fatal("expected an error for a two-point ring")
	}
}

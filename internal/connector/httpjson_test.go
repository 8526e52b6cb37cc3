package connector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openprocure/harrier/internal/domain"
)

const sampleFeed = `{
	"totalRecords": 2,
	"opportunitiesData": [
		{
			"noticeId": "N-001",
			"title": "Cloud Migration Services",
			"description": "Enterprise cloud migration",
			"department": "Department of Energy",
			"naicsCode": "541512",
			"classificationCode": "D302",
			"typeOfSetAside": "SBA",
			"type": "Solicitation",
			"postedDate": "2026-08-20",
			"responseDeadLine": "2026-10-01",
			"active": "Yes",
			"award": {"amount": 500000},
			"resourceLinks": [
				{"title": "SOW", "url": "https://example.gov/docs/sow.pdf"}
			]
		},
		{
			"noticeId": "N-002",
			"title": "Archived Notice",
			"department": "GSA",
			"postedDate": "2026-07-01",
			"responseDeadLine": "2026-07-15",
			"active": "No"
		}
	]
}`

func TestHTTPConnectorFetch(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	conn := NewHTTPConnector("sam.gov", srv.URL, "test-key")
	ctx := context.Background()

	records, err := conn.Fetch(ctx, domain.RunTypeFull, nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	rec := records[0]
	if rec.SourceID != "N-001" {
		t.Errorf("expected N-001, got %s", rec.SourceID)
	}
	if rec.Agency != "Department of Energy" {
		t.Errorf("expected agency mapped from department, got %s", rec.Agency)
	}
	if rec.PSCCode != "D302" {
		t.Errorf("expected PSC from classificationCode, got %s", rec.PSCCode)
	}
	if rec.ValueMax != 500000 {
		t.Errorf("expected value from award amount, got %f", rec.ValueMax)
	}
	if !rec.PostedAt.Equal(time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected parsed posted date, got %v", rec.PostedAt)
	}
	if rec.Status != domain.OppStatusActive {
		t.Errorf("expected active status, got %s", rec.Status)
	}
	if len(rec.Attachments) != 1 || rec.Attachments[0].URL != "https://example.gov/docs/sow.pdf" {
		t.Errorf("expected attachment carried through, got %+v", rec.Attachments)
	}

	if records[1].Status != domain.OppStatusClosed {
		t.Errorf("expected inactive notice marked closed, got %s", records[1].Status)
	}

	if got := gotQuery["api_key"]; len(got) != 1 || got[0] != "test-key" {
		t.Errorf("expected api_key in query, got %v", got)
	}
	if _, ok := gotQuery["postedFrom"]; ok {
		t.Error("full run must not set a posted-date floor")
	}
}

func TestHTTPConnectorIncrementalWindow(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"totalRecords":0,"opportunitiesData":[]}`))
	}))
	defer srv.Close()

	conn := NewHTTPConnector("sam.gov", srv.URL, "test-key")
	if _, err := conn.Fetch(context.Background(), domain.RunTypeIncremental, nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	from, ok := gotQuery["postedFrom"]
	if !ok || len(from) != 1 {
		t.Fatal("expected postedFrom on incremental run")
	}
	if _, err := time.Parse("01/02/2006", from[0]); err != nil {
		t.Errorf("expected MM/DD/YYYY posted-date floor, got %s", from[0])
	}
}

func TestHTTPConnectorExtraParams(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"totalRecords":0,"opportunitiesData":[]}`))
	}))
	defer srv.Close()

	conn := NewHTTPConnector("sam.gov", srv.URL, "test-key")
	_, err := conn.Fetch(context.Background(), domain.RunTypeFull, map[string]string{"ncode": "541512"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got := gotQuery["ncode"]; len(got) != 1 || got[0] != "541512" {
		t.Errorf("expected caller params forwarded, got %v", got)
	}
}

func TestHTTPConnectorStatusMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"Unauthorized", http.StatusUnauthorized, false},
		{"Forbidden", http.StatusForbidden, false},
		{"TooManyRequests", http.StatusTooManyRequests, true},
		{"ServerError", http.StatusInternalServerError, true},
		{"BadGateway", http.StatusBadGateway, true},
		{"NotFound", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			conn := NewHTTPConnector("sam.gov", srv.URL, "test-key")
			_, err := conn.Fetch(context.Background(), domain.RunTypeFull, nil)
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}

			var fe *domain.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %T", err)
			}
			if fe.Transient != tt.wantTransient {
				t.Errorf("transient = %v, want %v", fe.Transient, tt.wantTransient)
			}
		})
	}
}

func TestHTTPConnectorMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	conn := NewHTTPConnector("sam.gov", srv.URL, "test-key")
	_, err := conn.Fetch(context.Background(), domain.RunTypeFull, nil)

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if !fe.Transient {
		t.Error("expected malformed body treated as transient")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	t.Run("GetUnregistered", func(t *testing.T) {
		_, err := reg.Get("nowhere.gov")
		var fe *domain.FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("expected FetchError, got %v", err)
		}
		if fe.Transient {
			t.Error("expected missing connector to be a fatal configuration error")
		}
	})

	t.Run("RegisterAndGet", func(t *testing.T) {
		reg.Register(NewHTTPConnector("sam.gov", "https://example.gov", "k"))

		conn, err := reg.Get("sam.gov")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if conn.Source() != "sam.gov" {
			t.Errorf("expected sam.gov, got %s", conn.Source())
		}

		sources := reg.Sources()
		if len(sources) != 1 || sources[0] != "sam.gov" {
			t.Errorf("expected one registered source, got %v", sources)
		}
	})
}

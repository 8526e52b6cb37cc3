package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/openprocure/harrier/internal/domain"
)

// HTTPConnector fetches opportunity records from a JSON-over-HTTP
// procurement API. The response shape covers the common federal feed layout
// (SAM.gov-style opportunity search results).
type HTTPConnector struct {
	source  string
	baseURL string
	apiKey  string
	client  *http.Client
}

// apiResponse is the wire shape of the upstream search endpoint.
type apiResponse struct {
	TotalRecords  int `json:"totalRecords"`
	Opportunities []struct {
		NoticeID       string `json:"noticeId"`
		Title          string `json:"title"`
		Description    string `json:"description"`
		Department     string `json:"department"`
		NAICSCode      string `json:"naicsCode"`
		Classification string `json:"classificationCode"`
		SetAside       string `json:"typeOfSetAside"`
		Type           string `json:"type"`
		PostedDate     string `json:"postedDate"`
		ResponseDate   string `json:"responseDeadLine"`
		Active         string `json:"active"`
		Award          struct {
			Amount float64 `json:"amount"`
		} `json:"award"`
		ResourceLinks []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"resourceLinks"`
	} `json:"opportunitiesData"`
}

// NewHTTPConnector creates a connector for one JSON procurement feed.
func NewHTTPConnector(source, baseURL, apiKey string) *HTTPConnector {
	return &HTTPConnector{
		source:  source,
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Source returns the source key this connector serves.
func (c *HTTPConnector) Source() string {
	return c.source
}

// Fetch retrieves records from the upstream API. An incremental run limits
// the query to recent postings; a full run pages without a posted-date floor.
// HTTP 5xx and transport failures are transient; auth and client errors are
// fatal configuration problems.
func (c *HTTPConnector) Fetch(ctx context.Context, runType string, params map[string]string) ([]*domain.RawRecord, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("limit", "1000")
	if runType == domain.RunTypeIncremental {
		q.Set("postedFrom", time.Now().UTC().AddDate(0, 0, -2).Format("01/02/2006"))
	}
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &domain.FetchError{Source: c.source, Transient: false, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Source: c.source, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &domain.FetchError{
			Source:    c.source,
			Transient: false,
			Err:       fmt.Errorf("credentials rejected with status %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &domain.FetchError{
			Source:    c.source,
			Transient: true,
			Err:       fmt.Errorf("upstream returned status %d", resp.StatusCode),
		}
	default:
		return nil, &domain.FetchError{
			Source:    c.source,
			Transient: false,
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &domain.FetchError{Source: c.source, Transient: true, Err: fmt.Errorf("malformed response: %w", err)}
	}

	records := make([]*domain.RawRecord, 0, len(apiResp.Opportunities))
	for _, o := range apiResp.Opportunities {
		rec := &domain.RawRecord{
			SourceID:    o.NoticeID,
			Title:       o.Title,
			Description: o.Description,
			Agency:      o.Department,
			NAICSCode:   o.NAICSCode,
			PSCCode:     o.Classification,
			SetAside:    o.SetAside,
			OppType:     o.Type,
			PostedAt:    parseAPIDate(o.PostedDate),
			CloseAt:     parseAPIDate(o.ResponseDate),
			ValueMax:    o.Award.Amount,
			Status:      domain.OppStatusActive,
		}
		if o.Active == "No" {
			rec.Status = domain.OppStatusClosed
		}
		for _, link := range o.ResourceLinks {
			rec.Attachments = append(rec.Attachments, domain.RawAttachment{
				Title: link.Title,
				URL:   link.URL,
			})
		}
		records = append(records, rec)
	}

	return records, nil
}

// parseAPIDate accepts the two timestamp layouts the feeds emit.
func parseAPIDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

// APIError is the error body returned by the REST endpoint.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("rest api %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("rest api %d: %s", e.Status, msg)
}

// RESTStore upserts through a PostgREST-compatible HTTP API.
type RESTStore struct {
	client   *http.Client
	endpoint string
	key      string
}

// NewREST creates a store posting to {baseURL}/rest/v1/{table}.
func NewREST(baseURL, key, table string) (*RESTStore, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("postgrest: invalid URL %q", baseURL)
	}
	if key == "" {
		return nil, fmt.Errorf("postgrest: missing service key")
	}
	return &RESTStore{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: base.String() + "/rest/v1/" + table,
		key:      key,
	}, nil
}

// restRow is the JSON body for one record. Pointers keep nulls explicit.
type restRow struct {
	Source               string     `json:"source"`
	SourceURL            *string    `json:"source_url"`
	ExternalID           *string    `json:"external_id"`
	Title                string     `json:"title"`
	Description          *string    `json:"description"`
	StartDate            *time.Time `json:"start_date"`
	EndDate              *time.Time `json:"end_date"`
	Location             *string    `json:"location"`
	Contact              *string    `json:"contact"`
	RegistrationLink     *string    `json:"registration_link"`
	Organizer            *string    `json:"organizer"`
	RegistrationDeadline *string    `json:"registration_deadline"`
	TargetGroup          *string    `json:"target_group"`
	UniquenessKey        string     `json:"uniqueness_key"`
}

func strPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func toRESTRow(r retreat.Retreat) restRow {
	return restRow{
		Source:               string(r.Source),
		SourceURL:            strPtr(r.SourceURL),
		ExternalID:           strPtr(r.ExternalID),
		Title:                r.Title,
		Description:          strPtr(r.Description),
		StartDate:            r.StartDate,
		EndDate:              r.EndDate,
		Location:             strPtr(r.Location),
		Contact:              strPtr(r.Contact),
		RegistrationLink:     strPtr(r.RegistrationLink),
		Organizer:            strPtr(r.Organizer),
		RegistrationDeadline: strPtr(r.RegistrationDeadline),
		TargetGroup:          strPtr(r.TargetGroup),
		UniquenessKey:        r.UniquenessKey,
	}
}

// Upsert posts the batch as one request; the endpoint applies it atomically.
func (s *RESTStore) Upsert(ctx context.Context, records []retreat.Retreat, conflictKey string) (int, error) {
	if err := checkConflictKey(conflictKey); err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := s.upsert(ctx, records, conflictKey)
	observe(DriverPostgREST, start, n, err)
	return n, err
}

func (s *RESTStore) upsert(ctx context.Context, records []retreat.Retreat, conflictKey string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([]restRow, len(records))
	for i, r := range records {
		rows[i] = toRESTRow(r)
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return 0, fmt.Errorf("encoding rows: %w", err)
	}

	endpoint := s.endpoint + "?on_conflict=" + url.QueryEscape(conflictKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting rows: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, decodeAPIError(resp)
	}
	return len(records), nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// Close implements Store.
func (s *RESTStore) Close() error {
	return nil
}

package titles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Wikidata Action API endpoint.
const DefaultBaseURL = "https://www.wikidata.org/w/api.php"

// wbgetentitiesBatchSize is the API's maximum ids-per-request for
// unauthenticated clients.
const wbgetentitiesBatchSize = 50

// Ensure WikidataService implements the Service interface at compile time.
var _ Service = (*WikidataService)(nil)

// WikidataService implements [Service] against the Wikidata Action API
// (wbgetentities with sitelink filtering).
//
// WikidataService is safe for concurrent use.
type WikidataService struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for WikidataService.
type Option func(*WikidataService)

// WithTimeout sets a per-request HTTP timeout. A zero or negative value means
// no timeout (the default).
func WithTimeout(d time.Duration) Option {
	return func(s *WikidataService) {
		if d > 0 {
			s.httpClient.Timeout = d
		}
	}
}

// NewWikidataService constructs a WikidataService. baseURL is the Action API
// endpoint; if empty, [DefaultBaseURL] is used.
func NewWikidataService(baseURL string, opts ...Option) *WikidataService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	s := &WikidataService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// entitiesResponse is the subset of the wbgetentities JSON reply this client
// reads.
type entitiesResponse struct {
	Entities map[string]struct {
		ID        string `json:"id"`
		Missing   string `json:"missing"`
		Sitelinks map[string]struct {
			Title string `json:"title"`
		} `json:"sitelinks"`
	} `json:"entities"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// QIDByTitle implements Service.
func (s *WikidataService) QIDByTitle(ctx context.Context, wiki, title string) (uint32, bool, error) {
	params := url.Values{
		"action":     {"wbgetentities"},
		"format":     {"json"},
		"sites":      {wiki},
		"titles":     {title},
		"props":      {"sitelinks"},
		"sitefilter": {wiki},
	}
	resp, err := s.get(ctx, params)
	if err != nil {
		return 0, false, fmt.Errorf("titles: resolve %q in %s: %w", title, wiki, err)
	}
	for key, entity := range resp.Entities {
		if entity.Missing != "" || !strings.HasPrefix(key, "Q") {
			continue
		}
		qid, err := strconv.ParseUint(key[1:], 10, 32)
		if err != nil {
			continue
		}
		return uint32(qid), true, nil
	}
	return 0, false, nil
}

// TitlesByQIDs implements Service. QIDs are fetched in batches of 50, the
// API's ids-per-request limit.
func (s *WikidataService) TitlesByQIDs(ctx context.Context, wiki string, qids []uint32) (map[uint32]string, error) {
	result := make(map[uint32]string, len(qids))
	for start := 0; start < len(qids); start += wbgetentitiesBatchSize {
		end := min(start+wbgetentitiesBatchSize, len(qids))
		batch := qids[start:end]

		ids := make([]string, len(batch))
		for i, qid := range batch {
			ids[i] = "Q" + strconv.FormatUint(uint64(qid), 10)
		}
		params := url.Values{
			"action":     {"wbgetentities"},
			"format":     {"json"},
			"ids":        {strings.Join(ids, "|")},
			"props":      {"sitelinks"},
			"sitefilter": {wiki},
		}
		resp, err := s.get(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("titles: resolve %d qids in %s: %w", len(batch), wiki, err)
		}
		for key, entity := range resp.Entities {
			if entity.Missing != "" || !strings.HasPrefix(key, "Q") {
				continue
			}
			qid, err := strconv.ParseUint(key[1:], 10, 32)
			if err != nil {
				continue
			}
			if link, ok := entity.Sitelinks[wiki]; ok {
				result[uint32(qid)] = link.Title
			}
		}
	}
	return result, nil
}

// get performs one Action API round trip and decodes the reply.
func (s *WikidataService) get(ctx context.Context, params url.Values) (*entitiesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var decoded entitiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("api error %s: %s", decoded.Error.Code, decoded.Error.Info)
	}
	return &decoded, nil
}

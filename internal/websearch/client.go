// Package websearch is the HTTP client for the restricted web-search
// service. Searches are always constrained to a trusted-domain allowlist
// of medical institutions.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// TrustedDomains maps the allowed source domains to the institution
// names used for attribution.
var TrustedDomains = map[string]string{
	"diabetes.org":            "American Diabetes Association",
	"who.int":                 "World Health Organization",
	"cdc.gov":                 "Centers for Disease Control and Prevention",
	"nih.gov":                 "National Institutes of Health",
	"pubmed.ncbi.nlm.nih.gov": "PubMed",
	"mayoclinic.org":          "Mayo Clinic",
	"clevelandclinic.org":     "Cleveland Clinic",
	"joslin.org":              "Joslin Diabetes Center",
	"niddk.nih.gov":           "National Institute of Diabetes and Digestive and Kidney Diseases",
	"jdrf.org":                "JDRF",
	"diabetesresearch.org":    "Diabetes Research Institute",
}

// InstitutionFor returns the attribution name for a result URL. Longer
// domains are checked first so pubmed.ncbi.nlm.nih.gov wins over nih.gov.
func InstitutionFor(url string) string {
	lower := strings.ToLower(url)
	for _, domain := range domainsByLength() {
		if strings.Contains(lower, domain) {
			return TrustedDomains[domain]
		}
	}
	return ""
}

func domainsByLength() []string {
	domains := make([]string, 0, len(TrustedDomains))
	for d := range TrustedDomains {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool {
		return len(domains[i]) > len(domains[j])
	})
	return domains
}

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client communicates with the search service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// searchRequest is the JSON body for POST /v1/search.
type searchRequest struct {
	Query   string   `json:"query"`
	Domains []string `json:"domains"`
	Limit   int      `json:"limit"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search runs a domain-restricted query and returns up to limit results.
// Results from outside the trusted-domain allowlist are discarded.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	domains := make([]string, 0, len(TrustedDomains))
	for d := range TrustedDomains {
		domains = append(domains, d)
	}

	body, err := json.Marshal(searchRequest{Query: query, Domains: domains, Limit: limit})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d", resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	trusted := result.Results[:0]
	for _, r := range result.Results {
		if InstitutionFor(r.URL) != "" {
			trusted = append(trusted, r)
		}
	}
	if len(trusted) > limit && limit > 0 {
		trusted = trusted[:limit]
	}
	return trusted, nil
}

// Package kb is the HTTP client for the curated diabetes knowledge base.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Answer is a knowledge-base response with its source citations.
type Answer struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
}

// Client communicates with the knowledge-base service over HTTP.
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

// queryRequest is the JSON body for POST /v1/query.
type queryRequest struct {
	Query string `json:"query"`
}

// RetrieveAndGenerate asks the knowledge base to answer a question from
// its indexed guideline documents.
func (c *Client) RetrieveAndGenerate(ctx context.Context, query string) (Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	body, err := json.Marshal(queryRequest{Query: query})
	if err != nil {
		return Answer{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return Answer{}, fmt.Errorf("creating query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("knowledge base query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Answer{}, fmt.Errorf("knowledge base: unexpected status %d", resp.StatusCode)
	}

	var answer Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return Answer{}, fmt.Errorf("decoding knowledge base response: %w", err)
	}
	if answer.Text == "" {
		return Answer{}, fmt.Errorf("knowledge base: empty answer")
	}
	return answer, nil
}

// uploadRequest is the JSON body for POST /v1/documents.
type uploadRequest struct {
	DocID  string `json:"doc_id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// UploadDoc indexes one document chunk into the knowledge base.
func (c *Client) UploadDoc(ctx context.Context, docID, source, text string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	body, err := json.Marshal(uploadRequest{DocID: docID, Source: source, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading document %s: %w", docID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload %s: unexpected status %d", docID, resp.StatusCode)
	}
	return nil
}

// Package translate is the HTTP client for the translation service.
// Translation is strictly best-effort: every failure falls back to the
// original text so a broken translator never blocks a reply.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Supported lists the language codes the companion can hold a
// conversation in.
var Supported = []string{"en", "ar", "fr", "es", "pt", "de"}

// IsSupported reports whether code names a supported language.
func IsSupported(code string) bool {
	for _, c := range Supported {
		if c == code {
			return true
		}
	}
	return false
}

// Client communicates with the translation service over HTTP.
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

type translateRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type translateResponse struct {
	Text string `json:"text"`
}

// ToEnglish translates text from the given language into English.
// On any failure the original text is returned.
func (c *Client) ToEnglish(ctx context.Context, text, sourceLang string) string {
	if sourceLang == "" || sourceLang == "en" {
		return text
	}
	return c.translate(ctx, text, sourceLang, "en")
}

// FromEnglish translates English text into the given language.
// On any failure the original text is returned.
func (c *Client) FromEnglish(ctx context.Context, text, targetLang string) string {
	if targetLang == "" || targetLang == "en" {
		return text
	}
	return c.translate(ctx, text, "en", targetLang)
}

func (c *Client) translate(ctx context.Context, text, source, target string) string {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	body, err := json.Marshal(translateRequest{Text: text, Source: source, Target: target})
	if err != nil {
		return text
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/translate", bytes.NewReader(body))
	if err != nil {
		return text
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("translation failed, using original text", "source", source, "target", target, "error", err)
		return text
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("translation failed, using original text", "source", source, "target", target, "status", resp.StatusCode)
		return text
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.Text == "" {
		return text
	}
	return result.Text
}

type detectRequest struct {
	Text string `json:"text"`
}

type detectResponse struct {
	Language string `json:"language"`
}

// Detect returns the detected language code of text, or "en" when
// detection fails or reports an unsupported language.
func (c *Client) Detect(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := json.Marshal(detectRequest{Text: text})
	if err != nil {
		return "en"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/detect", bytes.NewReader(body))
	if err != nil {
		return "en"
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "en"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "en"
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "en"
	}
	if !IsSupported(result.Language) {
		return "en"
	}
	return result.Language
}

// LanguageName returns the English display name for a supported code.
func LanguageName(code string) string {
	switch code {
	case "ar":
		return "Arabic"
	case "fr":
		return "French"
	case "es":
		return "Spanish"
	case "pt":
		return "Portuguese"
	case "de":
		return "German"
	default:
		return "English"
	}
}

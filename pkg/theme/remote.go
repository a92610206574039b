package theme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const preferencesPath = "/api/v1/settings/preferences"

type appearanceDoc struct {
	Appearance struct {
		Theme Preference `json:"theme"`
	} `json:"appearance"`
}

// HTTPRemote talks to the settings REST API with a bearer token.
type HTTPRemote struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPRemote builds a Remote for baseURL (e.g. "https://app.example.com").
// A nil client gets a 10 second timeout.
func NewHTTPRemote(baseURL, token string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRemote{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (r *HTTPRemote) FetchTheme(ctx context.Context) (Preference, error) {
	var doc appearanceDoc
	if err := r.do(ctx, http.MethodGet, nil, &doc); err != nil {
		return "", err
	}
	if !doc.Appearance.Theme.Valid() {
		return "", fmt.Errorf("server returned invalid theme %q", doc.Appearance.Theme)
	}
	return doc.Appearance.Theme, nil
}

func (r *HTTPRemote) SaveTheme(ctx context.Context, p Preference) error {
	var body appearanceDoc
	body.Appearance.Theme = p
	return r.do(ctx, http.MethodPatch, body, nil)
}

func (r *HTTPRemote) do(ctx context.Context, method string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+preferencesPath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("preferences request failed: %d %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("preferences request failed: %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

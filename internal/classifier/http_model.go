package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// predictRequest is the body sent to the model server
type predictRequest struct {
	Text string `json:"text"`
}

// predictResponse is the body returned by the model server
type predictResponse struct {
	ProbabilityAttack *float64 `json:"probability_attack"`
}

// httpModel calls a remote model server over HTTP
type httpModel struct {
	baseURL string
	client  *http.Client
}

// HTTPModelLoader returns a Loader that probes {baseURL}/health and, if the server answers 200,
// yields a Model that POSTs to {baseURL}/predict.
func HTTPModelLoader(baseURL string, client *http.Client) Loader {
	baseURL = strings.TrimRight(baseURL, "/")
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context) (Model, error) {
		if baseURL == "" {
			return nil, fmt.Errorf("classifier url not configured")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
		if err != nil {
			return nil, fmt.Errorf("build health request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("classifier health check: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("classifier health check: status %d", resp.StatusCode)
		}

		return &httpModel{baseURL: baseURL, client: client}, nil
	}
}

// Predict implements Model
func (m *httpModel) Predict(ctx context.Context, text string) (float64, error) {
	body, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return 0, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("predict: status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode predict response: %w", err)
	}
	if out.ProbabilityAttack == nil {
		return 0, fmt.Errorf("predict response missing probability_attack")
	}

	return *out.ProbabilityAttack, nil
}

// Package telnyx holds the Call Control REST client and the HTTP
// surface of the probe: webhook receiver, bidirectional media stream
// and the small admin API used to trigger calls.
package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/probecall/probecall/pkg/errorsx"
	"github.com/probecall/probecall/pkg/logging"
)

const DefaultBaseURL = "https://api.telnyx.com/v2"

// APIError is a non-2xx Call Control response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telnyx api status %d: %s", e.Status, e.Body)
}

type ClientConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	return c
}

// Client drives the Call Control API. A nil *http.Client gets a
// 30-second-timeout default; tests inject their own.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:    cfg.withDefaults(),
		http:   httpClient,
		logger: logging.NewComponentLogger(slog.Default(), "telnyx"),
	}
}

// CreateCall places an outbound call and returns its call control id.
func (c *Client) CreateCall(ctx context.Context, to, from, connectionID, webhookURL string) (string, error) {
	body, err := c.post(ctx, "/calls", map[string]any{
		"to":            to,
		"from":          from,
		"connection_id": connectionID,
		"webhook_url":   webhookURL,
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTelnyxDial)
	}
	var resp struct {
		Data struct {
			CallControlID string `json:"call_control_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTelnyxDial)
	}
	if resp.Data.CallControlID == "" {
		return "", errorsx.New("create call response missing call_control_id", errorsx.ReasonTelnyxDial)
	}
	return resp.Data.CallControlID, nil
}

// StreamStart asks the provider to open the bidirectional media stream
// toward streamURL. RTP mode with the PCMU codec lets raw g711_ulaw
// audio from the speech session go back onto the call untouched.
func (c *Client) StreamStart(ctx context.Context, callControlID, streamURL string) error {
	_, err := c.post(ctx, "/calls/"+callControlID+"/actions/streaming_start", map[string]any{
		"stream_url":                 streamURL,
		"stream_track":               "inbound_track",
		"stream_bidirectional_mode":  "rtp",
		"stream_bidirectional_codec": "PCMU",
	})
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTelnyxStream)
	}
	return nil
}

// Hangup terminates a call.
func (c *Client) Hangup(ctx context.Context, callControlID string) error {
	_, err := c.post(ctx, "/calls/"+callControlID+"/actions/hangup", map[string]any{})
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTelnyxHangup)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("call control request failed",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keenon/AddBiomechanics-sub000/internal/logging"
	"github.com/keenon/AddBiomechanics-sub000/internal/metrics"
	"github.com/keenon/AddBiomechanics-sub000/pkg/retry"
)

const maxEventSize = 1 << 20

// ClientConfig holds relay client settings.
type ClientConfig struct {
	BaseURL      string
	AuthToken    string
	Timeout      time.Duration
	RetryConfig  retry.Config
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client is a Bus backed by a remote Relay. Subscriptions are long-lived SSE
// streams that reconnect with backoff; publications are POSTs.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	retryConfig  retry.Config
	reconnectMin time.Duration
	reconnectMax time.Duration
	id           string

	mu        sync.RWMutex
	authToken string
}

var _ Bus = (*Client)(nil)

// NewClient creates a relay client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{Timeout: 0}, // No timeout for SSE
		retryConfig:  cfg.RetryConfig,
		reconnectMin: cfg.ReconnectMin,
		reconnectMax: cfg.ReconnectMax,
		id:           logging.NewID(),
		authToken:    cfg.AuthToken,
	}
}

// SetAuthToken sets the JWT used for subsequent requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("X-Request-ID", c.id+"-"+logging.NewID())
}

// Publish posts msg to the relay, retrying transport and 5xx failures.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	err = retry.Do(ctx, c.retryConfig, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/publish", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.Retryable(fmt.Errorf("relay error: %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
			return fmt.Errorf("relay returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	metrics.RecordBusMessage("published")
	return nil
}

// Subscribe streams messages matching pattern to h until the returned
// function is called.
func (c *Client) Subscribe(pattern string, h Handler) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.subscribeLoop(ctx, pattern, h)
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func (c *Client) subscribeLoop(ctx context.Context, pattern string, h Handler) {
	reconnectDelay := c.reconnectMin

	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := c.connect(ctx, pattern, h)
		if ctx.Err() != nil {
			return
		}
		if connected {
			reconnectDelay = c.reconnectMin
		}

		logging.Warn("relay stream error, reconnecting",
			zap.String("topic", pattern),
			zap.Duration("delay", reconnectDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}

		reconnectDelay *= 2
		if reconnectDelay > c.reconnectMax {
			reconnectDelay = c.reconnectMax
		}
	}
}

// connect streams one SSE connection into h. connected reports whether the
// relay accepted the stream before it ended.
func (c *Client) connect(ctx context.Context, pattern string, h Handler) (connected bool, err error) {
	u := c.baseURL + "/api/v1/events?" + url.Values{"topic": {pattern}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.applyAuth(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("relay returned %d", resp.StatusCode)
	}

	logging.Info("relay stream connected", zap.String("topic", pattern))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				c.dispatch(data.String(), h)
				data.Reset()
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("read: %w", err)
	}
	return true, fmt.Errorf("connection closed")
}

func (c *Client) dispatch(data string, h Handler) {
	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		logging.Warn("dropping malformed relay frame", zap.Error(err))
		metrics.RecordBusMessage("dropped")
		return
	}
	metrics.RecordBusMessage("received")
	h(msg)
}

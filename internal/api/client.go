package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/shinamon610/ShareMouse/internal/protocol"
	"github.com/shinamon610/ShareMouse/internal/session"
)

// reconnectDelay is the pause before Watch redials a dropped stream.
const reconnectDelay = 2 * time.Second

// ErrUnauthorized is returned when the server rejects the token.
var ErrUnauthorized = errors.New("api: unauthorized")

// Client talks to the control API of a running session
type Client struct {
	addr  string
	token string
	http  *http.Client
}

// NewClient creates a client for the API at addr ("host:port").
func NewClient(addr, token string) *Client {
	return &Client{
		addr:  addr,
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the current session status.
func (c *Client) Status(ctx context.Context) (session.Status, error) {
	var st session.Status
	err := c.do(ctx, http.MethodGet, "/api/status", &st)
	return st, err
}

// Stop asks the session to stop and waits for the answer. The returned error
// is non-nil if the request failed; a session that ended with an error
// reports it in the second value.
func (c *Client) Stop(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/stop", &resp); err != nil {
		return "", err
	}
	return resp.Error, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	u := url.URL{Scheme: "http", Host: c.addr, Path: path}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("api: %s %s returned status %d: %s", method, path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// WatchHandlers receive stream events. Nil fields are skipped.
type WatchHandlers struct {
	Status     func(session.Status)
	Transition func(protocol.TransitionPayload)
}

type rawEvent struct {
	Type    protocol.EventType `json:"type"`
	Payload json.RawMessage    `json:"payload"`
}

// Watch streams session events until the session stops or ctx is done. A
// dropped connection is redialled; the first dial failing is an error.
func (c *Client) Watch(ctx context.Context, h WatchHandlers) error {
	connected := false
	for {
		stopped, err := c.watchOnce(ctx, h, &connected)
		switch {
		case stopped || ctx.Err() != nil:
			return nil
		case !connected:
			return err
		}
		log.Debug().Err(err).Str("module", "api").Msg("watch stream lost, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) watchOnce(ctx context.Context, h WatchHandlers, connected *bool) (bool, error) {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, ErrUnauthorized
		}
		return false, fmt.Errorf("api: dial %s: %w", u.String(), err)
	}
	defer conn.Close()
	*connected = true

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, nil
			}
			return false, err
		}

		var ev rawEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Str("module", "api").Msg("invalid stream event")
			continue
		}

		switch ev.Type {
		case protocol.TypeStatus:
			var st session.Status
			if err := json.Unmarshal(ev.Payload, &st); err == nil && h.Status != nil {
				h.Status(st)
			}
		case protocol.TypeTransition:
			var t protocol.TransitionPayload
			if err := json.Unmarshal(ev.Payload, &t); err == nil && h.Transition != nil {
				h.Transition(t)
			}
		case protocol.TypeStopped:
			return true, nil
		}
	}
}

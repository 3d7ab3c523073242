package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cory-johannsen/parlor/internal/protocol"
)

// Client is a simple WebSocket test client for integration testing.
type Client struct {
	conn *websocket.Conn
	t    *testing.T
}

// Dial connects to the given ws:// URL and returns a test client. Pass the
// token via the URL's query string or leave it off to exercise rejection.
//
// Precondition: url must point at a listening server.
// Postcondition: Returns a connected Client or fails the test.
func Dial(t *testing.T, url string) *Client {
	t.Helper()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v [%s]", url, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.CloseNow()
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &Client{conn: conn, t: t}
}

// Send writes one event frame to the server.
//
// Postcondition: The frame is written, or the test fails.
func (c *Client) Send(evType string, payload any) {
	c.t.Helper()

	frame, err := json.Marshal(protocol.Event{Type: evType, Payload: payload})
	if err != nil {
		c.t.Fatalf("marshalling %s: %v", evType, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		c.t.Fatalf("sending %s: %v", evType, err)
	}
}

// ReadEvent reads the next event frame within the timeout.
//
// Postcondition: Returns the decoded envelope, or fails on timeout or close.
func (c *Client) ReadEvent(timeout time.Duration) protocol.Envelope {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		c.t.Fatalf("reading event: %v", err)
	}

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.t.Fatalf("decoding event %q: %v", data, err)
	}
	return env
}

// ReadUntil reads events until one of the given type arrives, discarding the
// rest.
//
// Postcondition: Returns the first matching envelope, or fails on timeout.
func (c *Client) ReadUntil(evType string, timeout time.Duration) protocol.Envelope {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("no %s event before timeout", evType)
		}
		env := c.ReadEvent(remaining)
		if env.Type == evType {
			return env
		}
	}
}

// ExpectClosed reads until the server closes the connection and returns the
// close status.
//
// Postcondition: Returns the close status, or fails if the server keeps the
// connection open past the timeout.
func (c *Client) ExpectClosed(timeout time.Duration) websocket.StatusCode {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, _, err := c.conn.Read(ctx)
	if err == nil {
		c.t.Fatal("expected the server to close the connection")
	}
	status := websocket.CloseStatus(err)
	if status == -1 {
		c.t.Fatalf("connection ended without a close frame: %v", err)
	}
	return status
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.conn.Close(websocket.StatusNormalClosure, "")
}

// SignToken mints an HS256 session token for tests.
func SignToken(t *testing.T, secret, subject, username string, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":      subject,
		"username": username,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

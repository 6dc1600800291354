package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/koscakluka/ema-duplex/core/transport"
)

var _ transport.Transport = (*Conn)(nil)

// Options describes the voice chat endpoint and the session being opened on
// it.
type Options struct {
	URL       string
	Token     string
	BotID     string
	SessionID string
	RequestID string

	// Header is sent in addition to the Authorization header.
	Header           http.Header
	HandshakeTimeout time.Duration
	// WriteTimeout bounds every write; zero disables the deadline.
	WriteTimeout time.Duration
}

type Conn struct {
	conn         *gorilla.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Dial opens the voice chat socket with the session identifiers in the query
// and the access token as a bearer Authorization header.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	endpoint, err := BuildURL(opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for key, values := range opts.Header {
		header[key] = append([]string(nil), values...)
	}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	dialer := *gorilla.DefaultDialer
	if opts.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = opts.HandshakeTimeout
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open voice chat socket (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to open voice chat socket: %w", err)
	}
	logger.Info("voice chat socket connected", "url", redact(endpoint), "session_id", opts.SessionID)

	return &Conn{conn: conn, writeTimeout: opts.WriteTimeout}, nil
}

// BuildURL adds botId, sessionId and requestId to the endpoint query,
// keeping any query parameters already present.
func BuildURL(opts Options) (string, error) {
	if opts.URL == "" {
		return "", errors.New("voice chat url is required")
	}
	endpoint, err := url.Parse(opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid voice chat url: %w", err)
	}

	query := endpoint.Query()
	setIfPresent(query, "botId", opts.BotID)
	setIfPresent(query, "sessionId", opts.SessionID)
	setIfPresent(query, "requestId", opts.RequestID)
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

func setIfPresent(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}

func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	return u.String()
}

func (c *Conn) WriteText(message string) error {
	return c.write(gorilla.TextMessage, []byte(message))
}

func (c *Conn) WriteBinary(message []byte) error {
	return c.write(gorilla.BinaryMessage, message)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to write to voice chat socket: %w", err)
	}
	return nil
}

func (c *Conn) ReadMessage() (transport.MessageType, []byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				logger.Info("voice chat socket closed by remote", "reason", err.Error())
			}
			return 0, nil, fmt.Errorf("failed to read from voice chat socket: %w", err)
		}

		switch messageType {
		case gorilla.TextMessage:
			return transport.MessageText, data, nil
		case gorilla.BinaryMessage:
			return transport.MessageBinary, data, nil
		}
	}
}

// Close sends a normal closure frame when possible and closes the socket.
// It does not wait for pending writes and is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(
			gorilla.CloseMessage,
			gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

package hyperion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const defaultClientTimeout = 5 * time.Second

// Client speaks the remote protocol to a Hyperion server, one request at a
// time.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

func Dial(ctx context.Context, address string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

// Send writes req and waits for its reply. A reply with Success false is not
// an error.
func (c *Client) Send(req Request) (Reply, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return Reply{}, err
	}
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return Reply{}, err
	}
	if _, err := c.conn.Write(append(b, '\n')); err != nil {
		return Reply{}, fmt.Errorf("send %s: %w", req.Command, err)
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Reply{}, fmt.Errorf("read %s reply: %w", req.Command, err)
	}
	var reply Reply
	if err := json.Unmarshal(line, &reply); err != nil {
		return Reply{}, fmt.Errorf("decode %s reply: %w", req.Command, err)
	}
	return reply, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

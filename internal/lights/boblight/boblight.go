// Package boblight talks the boblightd line protocol: a hello handshake,
// optional light enumeration, then "set priority" and "set light" commands.
package boblight

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AlexisBRENON/hyperion2boblight/internal/lights"
	"github.com/AlexisBRENON/hyperion2boblight/internal/logging"
)

var logger = logging.New("boblight")

var ErrHandshake = errors.New("boblight handshake failed")

const DefaultPort = 19333

type Config struct {
	Address      string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// DefaultLight is addressed when light enumeration is disabled or the
	// server reports no lights.
	DefaultLight string
}

// Client is a boblightd connection. It is used by a single writer at a time.
type Client struct {
	config Config
	conn   net.Conn
	reader *bufio.Reader

	mu     sync.Mutex
	lights []lights.Light
}

var _ lights.LightService = (*Client)(nil)

func Dial(ctx context.Context, config Config) (*Client, error) {
	dialer := net.Dialer{Timeout: config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to boblight server %q: %w", config.Address, err)
	}
	logger.With(zap.String("address", config.Address)).Info("Boblight connection accepted")

	return newClient(conn, config), nil
}

// Connect dials the server, performs the handshake and, when enumerate is
// set, fetches the light list. The connection is closed on failure.
func Connect(ctx context.Context, config Config, enumerate bool) (*Client, error) {
	c, err := Dial(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := c.Hello(); err != nil {
		c.Close()
		return nil, err
	}
	if enumerate {
		if _, err := c.GetLights(); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func newClient(conn net.Conn, config Config) *Client {
	return &Client{
		config: config,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Hello performs the handshake: the server must echo "hello".
func (c *Client) Hello() error {
	if err := c.write([]byte("hello\n")); err != nil {
		return err
	}
	line, err := c.readLine()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if line != "hello" {
		return fmt.Errorf("%w: unexpected response %q", ErrHandshake, line)
	}
	return nil
}

// GetLights enumerates the lights known to the server. Scan values are
// reported on a 0-100 scale and stored as fractions.
func (c *Client) GetLights() ([]lights.Light, error) {
	if err := c.write([]byte("get lights\n")); err != nil {
		return nil, err
	}

	header, err := c.readLine()
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(header)
	if len(fields) != 2 || fields[0] != "lights" {
		return nil, fmt.Errorf("unable to enumerate lights: unexpected response %q", header)
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil || count < 0 {
		return nil, fmt.Errorf("unable to enumerate lights: bad light count %q", fields[1])
	}

	found := make([]lights.Light, 0, count)
	for i := 0; i < count; i++ {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		light, err := parseLight(line)
		if err != nil {
			return nil, err
		}
		found = append(found, light)
	}

	c.mu.Lock()
	c.lights = found
	c.mu.Unlock()

	logger.With(zap.Int("count", len(found)), zap.Any("lights", found)).Debug("Found lights")
	return found, nil
}

// parseLight reads "light <name> ... <vtop> <vbottom> <hleft> <hright>".
func parseLight(line string) (lights.Light, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 || fields[0] != "light" {
		return lights.Light{}, fmt.Errorf("unable to parse light %q", line)
	}

	var scan [4]float64
	for i, f := range fields[len(fields)-4:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return lights.Light{}, fmt.Errorf("unable to parse light %q: %w", line, err)
		}
		scan[i] = v / 100
	}

	return lights.Light{
		Name:  fields[1],
		VScan: [2]float64{scan[0], scan[1]},
		HScan: [2]float64{scan[2], scan[3]},
	}, nil
}

// Lights returns the enumerated lights, or the default light when none were
// enumerated.
func (c *Client) Lights() []lights.Light {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.lights) == 0 {
		return []lights.Light{{
			Name:  c.config.DefaultLight,
			HScan: [2]float64{0, 1},
			VScan: [2]float64{0, 1},
		}}
	}
	return append([]lights.Light(nil), c.lights...)
}

func (c *Client) SetPriority(priority int) error {
	return c.write([]byte("set priority " + strconv.Itoa(priority) + "\n"))
}

// SetColors sends one "set light" line per color in a single write.
func (c *Client) SetColors(colors []lights.LightColor) error {
	if len(colors) == 0 {
		return nil
	}
	return c.write(FormatColors(colors))
}

func FormatColors(colors []lights.LightColor) []byte {
	var buf bytes.Buffer
	for _, color := range colors {
		buf.WriteString("set light ")
		buf.WriteString(color.Name)
		buf.WriteString(" rgb ")
		buf.WriteString(formatComponent(color.R))
		buf.WriteByte(' ')
		buf.WriteString(formatComponent(color.G))
		buf.WriteByte(' ')
		buf.WriteString(formatComponent(color.B))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func formatComponent(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) write(b []byte) error {
	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	n, err := c.conn.Write(b)
	if err == nil {
		return nil
	}
	if n > 0 && n < len(b) {
		// The server holds an unterminated line: the stream is out of sync.
		return fmt.Errorf("%w: partial write of %d/%d bytes: %w", lights.ErrConnectionLost, n, len(b), err)
	}
	return classify(err)
}

func (c *Client) readLine() (string, error) {
	if c.config.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", classify(err)
	}
	return strings.TrimSpace(line), nil
}

// classify marks every failure except a timeout as a lost connection.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("boblight i/o timeout: %w", err)
	}
	return fmt.Errorf("%w: %w", lights.ErrConnectionLost, err)
}

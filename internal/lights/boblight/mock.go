package boblight

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// MockLight is a light reported by MockServer, scan values on a 0-100 scale.
type MockLight struct {
	Name          string
	VTop, VBottom float64
	HLeft, HRight float64
}

// MockServer is a minimal boblightd: it answers hello and get lights and
// records every other line it receives.
type MockServer struct {
	listener net.Listener

	mu     sync.Mutex
	conns  []net.Conn
	lines  []string
	notify chan struct{}

	greeting string
	lights   []MockLight
}

func NewMockServer() (*MockServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	m := &MockServer{
		listener: ln,
		notify:   make(chan struct{}, 1),
		greeting: "hello",
	}
	go m.serve()
	return m, nil
}

// SetGreeting changes the handshake reply.
func (m *MockServer) SetGreeting(greeting string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.greeting = greeting
}

func (m *MockServer) SetLights(lights ...MockLight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lights = lights
}

func (m *MockServer) Addr() string {
	return m.listener.Addr().String()
}

func (m *MockServer) Close() error {
	err := m.listener.Close()
	m.DropConnections()
	return err
}

// DropConnections closes every accepted connection, as a crashing server
// would.
func (m *MockServer) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.conns {
		conn.Close()
	}
	m.conns = nil
}

// Lines returns a copy of the recorded command lines.
func (m *MockServer) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

// Reset forgets the recorded lines.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
}

// WaitForLine waits until a recorded line satisfies match.
func (m *MockServer) WaitForLine(match func(string) bool, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		for _, l := range m.Lines() {
			if match(l) {
				return true
			}
		}
		select {
		case <-m.notify:
		case <-deadline:
			return false
		}
	}
}

func (m *MockServer) serve() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conns = append(m.conns, conn)
		m.mu.Unlock()
		go m.handleConn(conn)
	}
}

func (m *MockServer) handleConn(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "hello":
			m.mu.Lock()
			greeting := m.greeting
			m.mu.Unlock()
			fmt.Fprintf(conn, "%s\n", greeting)
		case "get lights":
			m.mu.Lock()
			ls := append([]MockLight(nil), m.lights...)
			m.mu.Unlock()
			var b strings.Builder
			fmt.Fprintf(&b, "lights %d\n", len(ls))
			for _, l := range ls {
				fmt.Fprintf(&b, "light %s scan %g %g %g %g\n", l.Name, l.VTop, l.VBottom, l.HLeft, l.HRight)
			}
			conn.Write([]byte(b.String()))
		default:
			m.mu.Lock()
			m.lines = append(m.lines, line)
			m.mu.Unlock()
			select {
			case m.notify <- struct{}{}:
			default:
			}
		}
	}
}

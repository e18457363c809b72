package boblight

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexisBRENON/hyperion2boblight/internal/lights"
)

func setupTest(t *testing.T) *MockServer {
	t.Helper()
	mock, err := NewMockServer()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func testConfig(mock *MockServer) Config {
	return Config{
		Address:      mock.Addr(),
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		DefaultLight: "screen",
	}
}

func dial(t *testing.T, mock *MockServer) *Client {
	t.Helper()
	c, err := Dial(context.Background(), testConfig(mock))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHello(t *testing.T) {
	mock := setupTest(t)
	c := dial(t, mock)

	require.NoError(t, c.Hello())
}

func TestHelloMismatch(t *testing.T) {
	mock := setupTest(t)
	mock.SetGreeting("goodbye")
	c := dial(t, mock)

	err := c.Hello()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), Config{Address: addr, DialTimeout: time.Second})
	assert.Error(t, err)
}

func TestGetLights(t *testing.T) {
	mock := setupTest(t)
	mock.SetLights(
		MockLight{Name: "left", VTop: 0, VBottom: 100, HLeft: 0, HRight: 50},
		MockLight{Name: "right", VTop: 0, VBottom: 100, HLeft: 50, HRight: 100},
	)
	c, err := Connect(context.Background(), testConfig(mock), true)
	require.NoError(t, err)
	defer c.Close()

	ls := c.Lights()
	require.Len(t, ls, 2)
	assert.Equal(t, lights.Light{Name: "left", VScan: [2]float64{0, 1}, HScan: [2]float64{0, 0.5}}, ls[0])
	assert.Equal(t, lights.Light{Name: "right", VScan: [2]float64{0, 1}, HScan: [2]float64{0.5, 1}}, ls[1])
}

func TestLightsDefault(t *testing.T) {
	mock := setupTest(t)
	c, err := Connect(context.Background(), testConfig(mock), false)
	require.NoError(t, err)
	defer c.Close()

	ls := c.Lights()
	require.Len(t, ls, 1)
	assert.Equal(t, "screen", ls[0].Name)
}

func TestParseLight(t *testing.T) {
	l, err := parseLight("light bottom scan 90 100 25 75")
	require.NoError(t, err)
	assert.Equal(t, "bottom", l.Name)
	assert.InDelta(t, 0.9, l.VScan[0], 1e-9)
	assert.Equal(t, 1.0, l.VScan[1])
	assert.Equal(t, [2]float64{0.25, 0.75}, l.HScan)

	for _, bad := range []string{"", "light", "lamp x scan 0 0 0 0", "light x scan 0 a 0 0"} {
		_, err := parseLight(bad)
		assert.Error(t, err, bad)
	}
}

func TestSetPriorityAndColors(t *testing.T) {
	mock := setupTest(t)
	c := dial(t, mock)

	require.NoError(t, c.SetPriority(128))
	require.NoError(t, c.SetColors(lights.Broadcast(
		[]lights.Light{{Name: "left"}, {Name: "right"}},
		lights.Color{Red: 128, Green: 128, Blue: 128}.Normalized(),
	)))

	want := []string{
		"set priority 128",
		"set light left rgb 0.501961 0.501961 0.501961",
		"set light right rgb 0.501961 0.501961 0.501961",
	}
	require.True(t, mock.WaitForLine(func(l string) bool { return strings.HasPrefix(l, "set light right") }, time.Second))
	assert.Equal(t, want, mock.Lines())
}

func TestFormatColors(t *testing.T) {
	out := FormatColors([]lights.LightColor{
		{Name: "screen", RGB: lights.Color{Red: 1, Green: 1, Blue: 1}.Normalized()},
	})
	assert.Equal(t, "set light screen rgb 0.003922 0.003922 0.003922\n", string(out))
}

func TestWriteAfterServerDropIsConnectionLost(t *testing.T) {
	mock := setupTest(t)
	c := dial(t, mock)
	require.NoError(t, c.Hello())

	mock.DropConnections()

	var err error
	for i := 0; i < 50 && err == nil; i++ {
		err = c.SetPriority(1)
		time.Sleep(10 * time.Millisecond)
	}
	require.Error(t, err)
	assert.True(t, errors.Is(err, lights.ErrConnectionLost), "got %v", err)
}

func TestWriteAfterCloseIsConnectionLost(t *testing.T) {
	mock := setupTest(t)
	c := dial(t, mock)
	c.Close()

	err := c.SetPriority(1)
	assert.ErrorIs(t, err, lights.ErrConnectionLost)
}

func TestPartialWriteIsConnectionLost(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()
	c := newClient(conn, Config{WriteTimeout: 50 * time.Millisecond})
	defer c.Close()

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 20)
		n, _ := server.Read(buf)
		received <- string(buf[:n])
	}()

	err := c.SetColors([]lights.LightColor{
		{Name: "left", RGB: lights.RGB{R: 0.5}},
		{Name: "right", RGB: lights.RGB{R: 0.5}},
	})
	assert.ErrorIs(t, err, lights.ErrConnectionLost)
	assert.Equal(t, "set light left rgb 0", <-received)
}

func TestWriteTimeoutWithoutProgressIsTransient(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()
	c := newClient(conn, Config{WriteTimeout: 50 * time.Millisecond})
	defer c.Close()

	err := c.SetPriority(1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, lights.ErrConnectionLost), "got %v", err)

	received := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(server).ReadString('\n')
		received <- line
	}()
	require.NoError(t, c.SetPriority(2))
	assert.Equal(t, "set priority 2\n", <-received)
}

// Package hyperion accepts Hyperion JSON remote protocol clients and turns
// their requests into priority list updates.
package hyperion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AlexisBRENON/hyperion2boblight/internal/effects"
	"github.com/AlexisBRENON/hyperion2boblight/internal/logging"
	"github.com/AlexisBRENON/hyperion2boblight/internal/metrics"
	"github.com/AlexisBRENON/hyperion2boblight/internal/priority"
	"github.com/AlexisBRENON/hyperion2boblight/internal/util"
)

var logger = logging.New("hyperion")

const (
	DefaultPort = 19444

	maxRequestSize = 64 * 1024

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

type Config struct {
	// Address is the host:port to listen on.
	Address string
}

type Server struct {
	list   *priority.List
	config Config

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

func NewServer(list *priority.List, config Config) *Server {
	return &Server{
		list:   list,
		config: config,
		conns:  make(map[net.Conn]struct{}),
	}
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends. Every open connection is
// closed and its handler joined before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		s.closeConns()
	})
	defer stop()

	logger.With(zap.Stringer("address", ln.Addr())).Info("Listening for Hyperion clients")
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				// Running out of file descriptors and the like: retry.
				backoff = min(max(2*backoff, minAcceptBackoff), maxAcceptBackoff)
				logger.With(zap.Error(err), zap.Stringer("retryIn", backoff)).Warn("Failed to accept connection")
				select {
				case <-time.After(backoff):
					continue
				case <-ctx.Done():
				}
			}
			s.closeConns()
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0
		if !s.track(conn) {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	log := logger.With(zap.String("connection", uuid.NewString()), zap.Stringer("remote", conn.RemoteAddr()))
	log.Debug("Client connected")
	defer log.Debug("Client disconnected")

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	encoder := json.NewEncoder(conn)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := encoder.Encode(s.handle(log, line)); err != nil {
			log.With(zap.Error(err)).Warn("Failed to write reply")
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.With(zap.Error(err)).Warn("Failed to read request")
	}
}

func (s *Server) handle(log *zap.SugaredLogger, line []byte) Reply {
	var req Request
	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		log.With(zap.Error(err)).Warn("Malformed request")
		metrics.CommandsTotal.WithLabelValues("malformed", "error").Inc()
		return failure(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	reply, err := s.Dispatch(req)
	if err != nil {
		log.With(zap.String("command", req.Command), zap.Error(err)).Warn("Command rejected")
		metrics.CommandsTotal.WithLabelValues(commandLabel(req.Command), "error").Inc()
		return failure(err)
	}
	log.With(zap.String("command", req.Command)).Debug("Command handled")
	metrics.CommandsTotal.WithLabelValues(req.Command, "ok").Inc()
	return reply
}

// Dispatch applies one request to the priority list. A request that returns
// an error has not modified the list.
func (s *Server) Dispatch(req Request) (Reply, error) {
	switch req.Command {
	case "serverinfo":
		return Reply{Success: true, Info: s.serverInfo()}, nil

	case "color":
		p, err := parsePriority(req.Priority)
		if err != nil {
			return Reply{}, err
		}
		color, err := parseColor(req.Color)
		if err != nil {
			return Reply{}, err
		}
		s.list.Put(p, color)
		return succeeded, nil

	case "effect":
		p, err := parsePriority(req.Priority)
		if err != nil {
			return Reply{}, err
		}
		if req.Effect == nil || req.Effect.Name == "" {
			return Reply{}, fmt.Errorf("%w: missing effect name", ErrInvalidRequest)
		}
		def, found := effects.Lookup(req.Effect.Name)
		if !found {
			return Reply{}, fmt.Errorf("%w: %q", effects.ErrUnknownEffect, req.Effect.Name)
		}
		s.list.Put(p, priority.Effect{Name: def.Name})
		return succeeded, nil

	case "clear":
		p, err := parsePriority(req.Priority)
		if err != nil {
			return Reply{}, err
		}
		s.list.Remove(p)
		return succeeded, nil

	case "clearall":
		s.list.Clear()
		return succeeded, nil

	case "quit":
		logger.Info("Shutdown requested by a client")
		s.list.RequestShutdown()
		return succeeded, nil

	case "":
		return Reply{}, fmt.Errorf("%w: missing command", ErrInvalidRequest)

	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
}

func (s *Server) serverInfo() *ServerInfo {
	info := &ServerInfo{
		Effects:    []EffectInfo{},
		Priorities: []PriorityInfo{},
		Transform:  identityTransform,
	}
	for _, d := range effects.Available() {
		info.Effects = append(info.Effects, EffectInfo{Name: d.Name, Script: d.Script, Args: map[string]any{}})
	}
	for _, p := range s.list.Priorities() {
		info.Priorities = append(info.Priorities, PriorityInfo{Priority: p})
	}
	return info
}

func parsePriority(v any) (int, error) {
	p, err := util.ParseInt(v)
	if err != nil {
		return 0, fmt.Errorf("%w: priority: %v", ErrInvalidRequest, err)
	}
	if p < 0 {
		return 0, fmt.Errorf("%w: priority must not be negative: %d", ErrInvalidRequest, p)
	}
	return p, nil
}

func parseColor(v []any) (priority.Color, error) {
	if len(v) != 3 {
		return priority.Color{}, fmt.Errorf("%w: color needs 3 components, got %d", ErrInvalidRequest, len(v))
	}
	var rgb [3]float64
	for i, c := range v {
		f, err := util.ParseFloat(c)
		if err != nil {
			return priority.Color{}, fmt.Errorf("%w: color: %v", ErrInvalidRequest, err)
		}
		if math.IsNaN(f) || f < 0 || f > 255 {
			return priority.Color{}, fmt.Errorf("%w: color component out of range: %v", ErrInvalidRequest, f)
		}
		rgb[i] = f
	}
	return priority.Color{Red: rgb[0], Green: rgb[1], Blue: rgb[2]}, nil
}

// commandLabel bounds the metric label cardinality to known commands.
func commandLabel(command string) string {
	switch command {
	case "serverinfo", "color", "effect", "clear", "clearall", "quit":
		return command
	default:
		return "unknown"
	}
}

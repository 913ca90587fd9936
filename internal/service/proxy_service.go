// Package service wires the upstream subprocess lifecycle to the
// optimization pipeline and drives the bidirectional message relay.
package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/proxy"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/pkg/mcp"
)

// ProxyService orchestrates bidirectional message proxying between the
// client and the single upstream MCP server process, running the
// message interceptor over every line in both directions.
type ProxyService struct {
	client      UpstreamClient
	interceptor proxy.MessageInterceptor
	logger      *slog.Logger
}

// NewProxyService creates a new proxy service with the given dependencies.
func NewProxyService(client UpstreamClient, interceptor proxy.MessageInterceptor, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client:      client,
		interceptor: interceptor,
		logger:      logger,
	}
}

// lineWriter serializes whole-line writes to an underlying stream. The
// client-bound stream has two producers — the server->client relay loop
// and the client->server loop whenever the interceptor synthesizes a
// local answer (cache hit, hash-sync short-circuit, meta-tool call,
// error response) — so every line must be written atomically through
// one shared writer or the two goroutines could interleave mid-line.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: w}
}

// writeLine writes msg followed by a newline as a single guarded write.
func (lw *lineWriter) writeLine(msg []byte) error {
	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')

	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(buf)
	return err
}

// Run starts the upstream, relays newline-delimited JSON-RPC messages
// between clientIn/clientOut and the upstream in both directions, and
// blocks until either side disconnects or ctx is cancelled. On return
// the upstream has been asked to shut down (stdin closed, then killed
// after a grace period if it has not exited).
func (p *ProxyService) Run(ctx context.Context, clientIn io.Reader, clientOut io.Writer) error {
	logger := p.logger
	if logger == nil {
		logger = slog.Default()
	}

	serverIn, serverOut, err := p.client.Start(ctx)
	if err != nil {
		return fmt.Errorf("start upstream: %w", err)
	}
	defer func() { _ = p.client.Close() }()

	parentCtx := ctx
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// One shared writer per output stream: all client-bound lines, from
	// either goroutine, go through clientLW.
	clientLW := newLineWriter(clientOut)
	serverLW := newLineWriter(serverIn)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { _ = serverIn.Close() }()
		if err := p.copyMessages(ctx, clientIn, serverLW, clientLW, mcp.ClientToServer, logger); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				errCh <- fmt.Errorf("client->server: %w", err)
			}
		}
		logger.Debug("client->server copy completed")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.copyMessages(ctx, serverOut, clientLW, nil, mcp.ServerToClient, logger); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				errCh <- fmt.Errorf("server->client: %w", err)
			}
		}
		logger.Debug("server->client copy completed")
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case err := <-errCh:
		cancel()
		<-done
		return err
	}

	waitErr := p.client.Wait()

	// External cancellation (the caller's context, not the one this
	// method derives) always takes priority over the upstream's own
	// exit status.
	if parentCtx.Err() != nil {
		return parentCtx.Err()
	}
	return waitErr
}

// copyMessages reads newline-delimited JSON-RPC messages from src,
// passes each through the interceptor, and writes the result to dst.
// clientOut, when non-nil, is used to deliver error responses and
// locally-synthesized answers (the interceptor flipping a request's
// direction to ServerToClient) back to the client instead of forwarding
// upstream. Both writers serialize whole lines, so a synthesized
// response never interleaves with a concurrently relayed upstream one.
func (p *ProxyService) copyMessages(ctx context.Context, src io.Reader, dst *lineWriter, clientOut *lineWriter, direction mcp.Direction, logger *slog.Logger) error {
	scanner := bufio.NewScanner(src)
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		startTime := time.Now()
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		msg := &mcp.Message{
			Raw:       append([]byte(nil), raw...),
			Direction: direction,
			Timestamp: startTime,
		}

		if decoded, err := mcp.DecodeMessage(raw); err == nil {
			msg.Decoded = decoded
			if direction == mcp.ClientToServer {
				_ = msg.ParseParams()
			}
		} else {
			logger.Debug("failed to decode message, passing through raw",
				"direction", direction, "error", err)
		}

		processedMsg, err := p.interceptor.Intercept(ctx, msg)
		if err != nil {
			logger.Error("interceptor rejected message", "direction", direction, "error", err)
			if direction == mcp.ClientToServer && clientOut != nil {
				errResp := proxy.CreateJSONRPCError(msg.RawID(), -32600, proxy.SafeErrorMessage(err))
				_ = clientOut.writeLine(errResp)
			}
			continue
		}

		writeTo := dst
		if direction == mcp.ClientToServer && processedMsg.Direction == mcp.ServerToClient && clientOut != nil {
			writeTo = clientOut
		}

		if err := writeTo.writeLine(processedMsg.Raw); err != nil {
			return fmt.Errorf("write failed: %w", err)
		}

		logger.Debug("forwarded message",
			"direction", direction,
			"method", processedMsg.Method(),
			"latency_us", time.Since(startTime).Microseconds(),
		)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan error: %w", err)
	}
	return nil
}

package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/daslan/birdwatch/internal/domain"
	"github.com/daslan/birdwatch/internal/twitter"
)

// maxStreamLine bounds a single stream message. Tweets with full includes
// stay well under this.
const maxStreamLine = 1 << 20

// StreamSource consumes the filtered stream. The connection is long-lived:
// the first FetchBatch installs from:<account> rules and dials the stream,
// and each subsequent call blocks until the next event arrives, returning it
// as a batch of size 1. Read failures tear the connection down and surface
// as source-unavailable so the driver reconnects.
type StreamSource struct {
	client   *twitter.Client
	accounts []string
	logger   *slog.Logger

	mu       sync.Mutex
	body     io.ReadCloser
	scanner  *bufio.Scanner
	connDone chan struct{}
	rulesSet bool
}

// NewStreamSource creates a streaming Source tracking the given accounts.
func NewStreamSource(client *twitter.Client, accounts []string, logger *slog.Logger) *StreamSource {
	return &StreamSource{
		client:   client,
		accounts: accounts,
		logger:   logger,
	}
}

// FetchBatch blocks until the next stream event and returns it as a batch of
// size 1. The since watermark is ignored: the stream only delivers live
// events. Malformed messages are logged and skipped without dropping the
// connection.
func (s *StreamSource) FetchBatch(ctx context.Context, _ time.Time) (domain.RawBatch, error) {
	if err := s.connect(ctx); err != nil {
		return domain.RawBatch{}, err
	}

	for {
		if err := ctx.Err(); err != nil {
			s.disconnect()
			return domain.RawBatch{}, err
		}

		line, err := s.readLine()
		if err != nil {
			s.disconnect()
			// Shutdown closes the body out from under the scanner; report
			// that as the cancellation it is, not as a source outage.
			if cerr := ctx.Err(); cerr != nil {
				return domain.RawBatch{}, cerr
			}
			return domain.RawBatch{}, fmt.Errorf("read stream: %w: %w", domain.ErrSourceUnavailable, err)
		}

		// Keep-alive newlines arrive every ~20s on an idle stream.
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var event twitter.StreamEvent
		if err := json.Unmarshal(line, &event); err != nil {
			s.logger.Error("failed to parse stream event", "error", err)
			continue
		}
		if event.Data == nil {
			continue
		}

		return toRawBatch([]twitter.Tweet{*event.Data}, event.Includes), nil
	}
}

// Close tears down the stream connection. Safe to call concurrently with
// FetchBatch; a blocked read returns with an error.
func (s *StreamSource) Close() error {
	s.disconnect()
	return nil
}

func (s *StreamSource) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.body != nil {
		return nil
	}

	if !s.rulesSet {
		if err := s.client.ReplaceStreamRules(ctx, s.accounts); err != nil {
			return fmt.Errorf("replace stream rules: %w", err)
		}
		s.rulesSet = true
		s.logger.Info("stream rules installed", "accounts", len(s.accounts))
	}

	body, err := s.client.OpenStream(ctx)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)

	done := make(chan struct{})
	go func() {
		// Unblock the scanner when the caller goes away.
		select {
		case <-ctx.Done():
			body.Close()
		case <-done:
		}
	}()

	s.body = body
	s.scanner = scanner
	s.connDone = done
	s.logger.Info("connected to filtered stream")
	return nil
}

func (s *StreamSource) readLine() ([]byte, error) {
	s.mu.Lock()
	scanner := s.scanner
	s.mu.Unlock()

	if scanner == nil {
		return nil, fmt.Errorf("stream closed")
	}
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return scanner.Bytes(), nil
}

func (s *StreamSource) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
	if s.connDone != nil {
		close(s.connDone)
		s.connDone = nil
	}
	s.scanner = nil
}

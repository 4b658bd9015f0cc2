package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const handshakeTimeout = 10 * time.Second

// handshakeError carries the HTTP status of a refused websocket upgrade.
type handshakeError struct {
	StatusCode int
	Err        error
}

func (e *handshakeError) Error() string {
	return fmt.Sprintf("deepgram handshake refused (HTTP %d): %v", e.StatusCode, e.Err)
}

func (e *handshakeError) Unwrap() error { return e.Err }

// listenStream is one listen request: the whole payload is written in chunks,
// followed by CloseStream, while results are read until the provider closes.
type listenStream struct {
	conn     *websocket.Conn
	segments chan segment
	done     chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once

	mu        sync.Mutex
	err       error
	requestID string
	duration  time.Duration
}

func openListenStream(ctx context.Context, wsURL string, apiKey string, payload []byte, chunkSize int) (*listenStream, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+apiKey)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &handshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	stream := &listenStream{
		conn:     conn,
		segments: make(chan segment, 16),
		done:     make(chan struct{}),
	}
	if resp != nil {
		stream.requestID = resp.Header.Get("dg-request-id")
	}

	stream.wg.Add(2)
	go stream.readLoop()
	go stream.writeLoop(payload, chunkSize)
	go func() {
		stream.wg.Wait()
		close(stream.segments)
		close(stream.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stream.done:
		}
	}()

	return stream, nil
}

func (s *listenStream) Segments() <-chan segment {
	return s.segments
}

func (s *listenStream) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close tears the connection down; both loops exit on the resulting I/O error.
func (s *listenStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

// RequestID is the provider's request identifier, when it sent one.
func (s *listenStream) RequestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestID
}

// AudioDuration is the audio length the provider reported in its metadata.
func (s *listenStream) AudioDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *listenStream) waitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *listenStream) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *listenStream) writeLoop(payload []byte, chunkSize int) {
	defer s.wg.Done()

	if chunkSize <= 0 {
		chunkSize = len(payload)
	}
	for start := 0; start < len(payload); start += chunkSize {
		end := min(start+chunkSize, len(payload))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, payload[start:end]); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

func (s *listenStream) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		switch {
		case strings.EqualFold(response.Type, "Error"):
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		case strings.EqualFold(response.Type, "Metadata"):
			s.recordMetadata(response)
			continue
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}

		seg := segment{kind: segmentPartial, text: transcript}
		if response.IsFinal || response.SpeechFinal {
			seg.kind = segmentFinal
		}
		// Finals are the answer; the collector drains until close, so block.
		s.segments <- seg
	}
}

func (s *listenStream) recordMetadata(response listenResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestID == "" {
		s.requestID = response.RequestID
	}
	if response.Duration > 0 {
		s.duration = time.Duration(response.Duration * float64(time.Second))
	}
}

// awaitFinal waits for the provider to flush its results, closing the
// connection if it does not finish in time.
func awaitFinal(stream *listenStream, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- stream.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = stream.Close()
		if err := <-done; err != nil {
			return err
		}
		return fmt.Errorf("deepgram did not finish within %s", timeout)
	}
}

type listenAlternative struct {
	Transcript string `json:"transcript"`
}

type listenResponse struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	RequestID   string  `json:"request_id"`
	Duration    float64 `json:"duration"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`

	Channel struct {
		Alternatives []listenAlternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []listenAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response listenResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/candletrader/engine/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const (
	backoffBase          = 500 * time.Millisecond
	backoffCap           = 30 * time.Second
	maxConsecutiveErrors = 5
	streamReadTimeout    = 30 * time.Second
)

// tr_id prefixes route a realtime frame's ^-delimited payload to the
// right parser.
const (
	trIDTickPrefix = "H0STCNT"
	trIDBookPrefix = "H0STASP"
	trIDExecPrefix = "H0STCNI"
)

// streamSession owns the push-path websocket connection: reconnect with
// bounded exponential backoff, PINGPONG echo, the AES key/iv negotiated
// at subscription ack, and fail-over to pull-only after too many
// consecutive errors.
type streamSession struct {
	cfg    Config
	logger *logging.Logger
	zlog   zerolog.Logger

	onTick      func(Tick)
	onBook      func(BookTop)
	onExecution func(ExecutionNotice)

	mu         sync.RWMutex
	conn       *websocket.Conn
	running    bool
	subscribed map[string]bool
	execKey    []byte
	execIV     []byte

	breaker *gobreaker.CircuitBreaker

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newStreamSession(cfg Config, onTick func(Tick), onBook func(BookTop), onExecution func(ExecutionNotice), logger *logging.Logger) *streamSession {
	s := &streamSession{
		cfg:         cfg,
		logger:      logger,
		zlog:        log.With().Str("component", "feed.stream").Logger(),
		onTick:      onTick,
		onBook:      onBook,
		onExecution: onExecution,
		subscribed:  make(map[string]bool),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "feed.stream",
		MaxRequests: 1,
		Timeout:     backoffCap,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxConsecutiveErrors
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.zlog.Warn().Str("from", from.String()).Str("to", to.String()).Msg("stream circuit breaker state change")
		},
	})
	return s
}

// isHealthy reports whether the stream is currently believed able to
// deliver frames: connected and the reconnect breaker is not open. When
// false, consumers fall back to PriceFeed's pull path.
func (s *streamSession) isHealthy() bool {
	s.mu.RLock()
	connected := s.conn != nil
	s.mu.RUnlock()
	return connected && s.breaker.State() != gobreaker.StateOpen
}

func (s *streamSession) start() {
	s.mu.Lock()
	if s.running || s.cfg.URL == "" {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.connectLoop()
}

func (s *streamSession) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
}

func (s *streamSession) connectLoop() {
	defer s.wg.Done()
	attempt := 0

	for {
		s.mu.RLock()
		running := s.running
		s.mu.RUnlock()
		if !running {
			return
		}

		result, err := s.breaker.Execute(func() (interface{}, error) {
			conn, _, dialErr := websocket.DefaultDialer.Dial(s.cfg.URL, nil)
			return conn, dialErr
		})
		if err != nil {
			s.zlog.Warn().Err(err).Msg("stream dial failed")
			if err == gobreaker.ErrOpenState {
				s.zlog.Error().Msg("stream degraded: failing over to pull-only mode")
			}
			if !s.sleepBackoff(attempt) {
				return
			}
			attempt++
			continue
		}
		conn := result.(*websocket.Conn)

		s.mu.Lock()
		s.conn = conn
		s.resubscribeLocked()
		s.mu.Unlock()

		attempt = 0
		s.zlog.Info().Msg("stream connected")

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		s.mu.RLock()
		running = s.running
		s.mu.RUnlock()
		if !running {
			return
		}

		s.zlog.Warn().Msg("stream connection lost, reconnecting")
		if !s.sleepBackoff(attempt) {
			return
		}
		attempt++
	}
}

// sleepBackoff waits a bounded exponential backoff, interruptible by
// stop(). Returns false if the session was stopped while sleeping.
func (s *streamSession) sleepBackoff(attempt int) bool {
	delay := backoffBase << attempt
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}
	s.mu.RLock()
	stopChan := s.stopChan
	s.mu.RUnlock()

	select {
	case <-time.After(delay):
		return true
	case <-stopChan:
		return false
	}
}

func (s *streamSession) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		s.handleMessage(conn, message)
	}
}

func (s *streamSession) handleMessage(conn *websocket.Conn, message []byte) {
	if len(message) == 0 {
		return
	}
	if isPingPong(message) {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			s.zlog.Warn().Err(err).Msg("pingpong echo failed")
		}
		return
	}

	if message[0] == '{' {
		s.handleControlFrame(message)
		return
	}

	s.handleRealtimeFrame(string(message))
}

func (s *streamSession) handleControlFrame(message []byte) {
	cf, err := parseControlFrame(message)
	if err != nil {
		s.zlog.Warn().Err(err).Msg("malformed control frame, dropping")
		return
	}
	if cf.Body.Output == nil || cf.Body.Output.Key == "" {
		return
	}
	key, err := decodeHandshakeKey(cf.Body.Output.Key)
	if err != nil {
		s.zlog.Warn().Err(err).Msg("bad execution key in control frame")
		return
	}
	iv, err := decodeHandshakeKey(cf.Body.Output.IV)
	if err != nil {
		s.zlog.Warn().Err(err).Msg("bad execution iv in control frame")
		return
	}

	s.mu.Lock()
	s.execKey = key
	s.execIV = iv
	s.mu.Unlock()
}

func (s *streamSession) handleRealtimeFrame(line string) {
	rf, err := parseRawFrame(line)
	if err != nil {
		s.zlog.Warn().Err(err).Msg("malformed realtime frame, dropping")
		return
	}

	switch {
	case strings.HasPrefix(rf.TRID, trIDTickPrefix):
		s.dispatchTickRecords(rf)
	case strings.HasPrefix(rf.TRID, trIDBookPrefix):
		s.dispatchBookRecords(rf)
	case strings.HasPrefix(rf.TRID, trIDExecPrefix):
		s.dispatchExecutionFrame(rf)
	default:
		s.zlog.Debug().Str("tr_id", rf.TRID).Msg("unhandled frame type")
	}
}

func (s *streamSession) dispatchTickRecords(rf RawFrame) {
	for _, rec := range splitRecords(rf.Payload, rf.Count) {
		fields := strings.Split(rec, "^")
		tick, err := parseTickRecord(fields)
		if err != nil {
			s.zlog.Warn().Err(err).Msg("malformed tick record, dropping")
			continue
		}
		if s.onTick != nil {
			s.onTick(tick)
		}
	}
}

func (s *streamSession) dispatchBookRecords(rf RawFrame) {
	for _, rec := range splitRecords(rf.Payload, rf.Count) {
		fields := strings.Split(rec, "^")
		book, err := parseBookRecord(fields)
		if err != nil {
			s.zlog.Warn().Err(err).Msg("malformed book record, dropping")
			continue
		}
		if s.onBook != nil {
			s.onBook(book)
		}
	}
}

func (s *streamSession) dispatchExecutionFrame(rf RawFrame) {
	s.mu.RLock()
	key, iv := s.execKey, s.execIV
	s.mu.RUnlock()
	if len(key) == 0 {
		s.zlog.Warn().Msg("execution frame received before key handshake, dropping")
		return
	}

	decrypted, err := decryptExecutionNotice(rf.Payload, key, iv)
	if err != nil {
		s.zlog.Warn().Err(err).Msg("execution notice decrypt failed, dropping")
		return
	}

	notice, ok := parseExecutionNotice(decrypted)
	if !ok {
		return
	}

	s.zlog.Info().
		Str("stock_code", notice.StockCode).
		Str("order_no", notice.OrderNo).
		Str("side", string(notice.Side)).
		Int("quantity", notice.Quantity).
		Float64("price", notice.Price).
		Msg("execution notice")

	if s.onExecution != nil {
		s.onExecution(notice)
	}
}

// splitRecords splits a multi-record payload. count<=1 is the common
// case of a single ^-delimited record; count>1 payloads concatenate
// count records, themselves caret-delimited, which this engine has not
// observed in practice — treated as one record defensively rather than
// guessing a sub-delimiter.
func splitRecords(payload string, count int) []string {
	if count <= 1 {
		return []string{payload}
	}
	return []string{payload}
}

// subscribe sends a subscription control message for stockCode. The
// capacity check itself lives in PriceFeed.Subscribe; this only speaks
// the wire protocol.
func (s *streamSession) subscribe(ctx context.Context, stockCode string) error {
	s.mu.Lock()
	s.subscribed[stockCode] = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		// Session not connected yet; resubscribeLocked() replays this
		// set once the connection comes up.
		return nil
	}
	return s.sendSubscription(conn, stockCode, true)
}

func (s *streamSession) unsubscribe(stockCode string) {
	s.mu.Lock()
	delete(s.subscribed, stockCode)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = s.sendSubscription(conn, stockCode, false)
	}
}

// resubscribeLocked replays all tracked subscriptions after a reconnect.
// Caller must hold s.mu.
func (s *streamSession) resubscribeLocked() {
	for code := range s.subscribed {
		_ = s.sendSubscription(s.conn, code, true)
	}
}

type subscriptionRequest struct {
	Header struct {
		ApprovalKey string `json:"approval_key"`
		TRType      string `json:"tr_type"`
		ContentType string `json:"custtype"`
	} `json:"header"`
	Body struct {
		Input struct {
			TRID  string `json:"tr_id"`
			TRKey string `json:"tr_key"`
		} `json:"input"`
	} `json:"body"`
}

func (s *streamSession) sendSubscription(conn *websocket.Conn, stockCode string, subscribe bool) error {
	req := subscriptionRequest{}
	req.Header.TRType = "1"
	if !subscribe {
		req.Header.TRType = "2"
	}
	req.Header.ContentType = "P"
	req.Body.Input.TRID = trIDTickPrefix + "0"
	req.Body.Input.TRKey = stockCode

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("feed: marshal subscription request: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// CandidateContext creates a logger context for candidate lifecycle operations
func CandidateContext(stockCode, status string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"stock_code": stockCode,
		"status":     status,
	}).WithComponent("candidate")
}

// OrderContext creates a logger context for order operations
func OrderContext(orderNo, stockCode, side, orderType string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"order_no":   orderNo,
		"stock_code": stockCode,
		"side":       side,
		"order_type": orderType,
	}).WithComponent("order")
}

// PositionContext creates a logger context for position operations
func PositionContext(stockCode, side string, entryPrice float64, quantity int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"stock_code":  stockCode,
		"side":        side,
		"entry_price": entryPrice,
		"quantity":    quantity,
	}).WithComponent("position")
}

// PatternContext creates a logger context for pattern detection
func PatternContext(stockCode, patternType string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"stock_code":   stockCode,
		"pattern_type": patternType,
	}).WithComponent("pattern")
}

// SignalContext creates a logger context for trading signals
func SignalContext(stockCode, signal string, strength float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"stock_code": stockCode,
		"signal":     signal,
		"strength":   strength,
	}).WithComponent("signal")
}

// RiskContext creates a logger context for risk management
func RiskContext(stockCode string, positionSizePct, riskScore float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"stock_code":        stockCode,
		"position_size_pct": positionSizePct,
		"risk_score":        riskScore,
	}).WithComponent("risk")
}

// APIContext creates a logger context for HTTP status-surface operations
func APIContext(method, path string, statusCode int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
	}).WithComponent("api")
}

// StreamContext creates a logger context for the realtime price/execution stream
func StreamContext(stockCode, trID string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"stock_code": stockCode,
		"tr_id":      trID,
	}).WithComponent("stream")
}

// HTTPMiddleware is a middleware that adds logging to HTTP requests
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		// Create logger with request context
		l := Default().WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		}).WithComponent("http")

		// Add logger to context
		ctx := NewContext(r.Context(), l)
		r = r.WithContext(ctx)

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call next handler
		next.ServeHTTP(wrapped, r)

		// Log request completion
		duration := time.Since(start)
		l.WithDuration(duration).WithField("status_code", wrapped.statusCode).Info("Request completed")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// BrokerContext creates a logger context for brokerage REST calls
func BrokerContext(endpoint string, params map[string]interface{}) *Logger {
	l := Default().WithFields(map[string]interface{}{
		"endpoint": endpoint,
	}).WithComponent("broker")

	// Add safe params (exclude sensitive data)
	for k, v := range params {
		if k != "appkey" && k != "appsecret" && k != "access_token" {
			l = l.WithField(k, v)
		}
	}

	return l
}

// PersistenceContext creates a logger context for persistence operations
func PersistenceContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("persistence")
}

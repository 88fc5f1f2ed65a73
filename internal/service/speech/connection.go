package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// dialPolicy 控制握手失败时的重试
type dialPolicy struct {
	maxAttempts int
	backoff     time.Duration
}

func defaultDialPolicy() dialPolicy {
	return dialPolicy{maxAttempts: 3, backoff: time.Second}
}

// dialWithRetry 建立连接，握手的临时错误按线性退避重试
func dialWithRetry(ctx context.Context, dialer *websocket.Dialer, policy dialPolicy, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	attempts := max(policy.maxAttempts, 1)

	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if !isRetryableDial(resp, err) || i == attempts-1 {
			break
		}

		delay := time.Duration(i+1) * policy.backoff
		log.Printf("[speech] dial %s failed (attempt %d/%d): %v", url, i+1, attempts, err)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, nil, fmt.Errorf("websocket dial failed: %w", lastErr)
}

// isRetryableDial 判断握手错误是否可重试
func isRetryableDial(resp *http.Response, err error) bool {
	if err == nil {
		return false
	}
	if resp != nil {
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrBadHandshake)
}

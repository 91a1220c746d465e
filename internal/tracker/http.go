package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPNotifier posts each update as JSON to the counter service.
type HTTPNotifier struct {
	url     string
	timeout time.Duration
}

func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPNotifier{url: url, timeout: timeout}
}

func (n *HTTPNotifier) Name() string { return "http" }

func (n *HTTPNotifier) Notify(ctx context.Context, updates []CounterUpdate) error {
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return err
		}
		timeout := n.timeout
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < timeout {
				timeout = left
			}
		}

		agent := fiber.Post(n.url).Timeout(timeout).JSON(u)
		if err := agent.Parse(); err != nil {
			return fmt.Errorf("tracker: post %s: %w", n.url, err)
		}
		code, body, errs := agent.Bytes()
		if len(errs) > 0 {
			return fmt.Errorf("tracker: post %s: %w", n.url, errors.Join(errs...))
		}
		if code < 200 || code >= 300 {
			return fmt.Errorf("tracker: post %s: status %d: %s", n.url, code, truncate(body, 200))
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

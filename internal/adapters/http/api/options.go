package api

import "golang.org/x/time/rate"

// Default server limits.
const (
	defaultCaptureRate    = 5.0
	defaultCaptureBurst   = 10
	defaultMaxUploadBytes = 10 << 20
)

type serverConfig struct {
	captureRate    float64
	captureBurst   int
	maxUploadBytes int64
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		captureRate:    defaultCaptureRate,
		captureBurst:   defaultCaptureBurst,
		maxUploadBytes: defaultMaxUploadBytes,
	}
}

// limiter returns nil when capture rate limiting is disabled.
func (c serverConfig) limiter() *rate.Limiter {
	if c.captureRate <= 0 {
		return nil
	}
	burst := c.captureBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.captureRate), burst)
}

// Option configures the API server.
type Option func(*serverConfig)

// WithCaptureRateLimit bounds capture requests per second. A non-positive rate disables the limit.
func WithCaptureRateLimit(perSecond float64, burst int) Option {
	return func(c *serverConfig) {
		c.captureRate = perSecond
		c.captureBurst = burst
	}
}

// WithMaxUploadBytes bounds the size of an uploaded photo.
func WithMaxUploadBytes(n int64) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxUploadBytes = n
		}
	}
}

package ratelimit

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "PriceFeatures/pkg/http"
)

// Middleware limits requests per client IP. rps <= 0 disables it.
func Middleware(l *Limiter, rps float64, burst int) echo.MiddlewareFunc {
	if burst < 1 {
		burst = 1
	}
	var lastSweep atomic.Int64
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if rps <= 0 {
			return next
		}
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP(), float64(burst), rps) {
				c.Response().Header().Set("Retry-After", "1")
				return xhttp.DataResponse(c, http.StatusTooManyRequests, []*xhttp.AppError{
					xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many requests", http.StatusTooManyRequests),
				})
			}
			now := time.Now().Unix()
			if last := lastSweep.Load(); now-last > 600 && lastSweep.CompareAndSwap(last, now) {
				l.Forget(10 * time.Minute)
			}
			return next(c)
		}
	}
}

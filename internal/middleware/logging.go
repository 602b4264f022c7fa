package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestLogger writes one structured line per request.  Not-found answers
// are routine for a public endpoint and are logged at debug only.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		HandleError:  true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := zapcore.InfoLevel
			switch {
			case v.Status == http.StatusNotFound:
				level = zapcore.DebugLevel
			case v.Status >= http.StatusInternalServerError:
				level = zapcore.ErrorLevel
			}
			if ce := log.Check(level, "request"); ce != nil {
				fields := []zap.Field{
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.String("route", v.RoutePath),
					zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency),
					zap.String("remote_ip", v.RemoteIP),
				}
				if v.Error != nil && v.Status >= http.StatusInternalServerError {
					fields = append(fields, zap.Error(v.Error))
				}
				ce.Write(fields...)
			}
			return nil
		},
	})
}

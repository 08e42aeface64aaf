package api

import (
	"context"
	"time"

	"github.com/goliatone/go-user-cache/repositorycache"
	"github.com/goliatone/go-user-cache/users"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// BasePath prefixes every versioned route.
const BasePath = "/api/v1"

// UserService is the cache-consistent user store the handlers serve.
// *repositorycache.CachedUsers satisfies it.
type UserService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
	List(ctx context.Context, limit, offset int) ([]*users.User, error)
	Create(ctx context.Context, in users.CreateUser) (*users.User, error)
	Update(ctx context.Context, id uuid.UUID, in users.UpdateUser) (*users.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Stats() repositorycache.Stats
}

// HealthChecker reports the health of each backing component. A nil error
// means the component is healthy.
type HealthChecker interface {
	Health(ctx context.Context) map[string]error
}

var _ UserService = (*repositorycache.CachedUsers)(nil)

// NewServer returns an echo instance with middleware, error handling and
// every route registered.
func NewServer(svc UserService, health HealthChecker, logger *zap.Logger) *echo.Echo {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	NewHandler(svc, health).Register(e)
	return e
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency.Round(time.Microsecond)),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				logger.Error("request", fields...)
			case v.Status >= 400:
				logger.Info("request", fields...)
			default:
				logger.Debug("request", fields...)
			}
			return nil
		},
	})
}

package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/apishield/internal/application/dto"
	"github.com/turtacn/apishield/internal/config"
	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/logger"
)

// Admitter makes the admission decision for one request.
type Admitter interface {
	Admit(ctx context.Context, identity, path string) (models.AdmissionResult, error)
}

// ShieldOptions controls how decisions are turned into responses.
type ShieldOptions struct {
	PathPrefix       string
	ErrorMessage     string
	RetryAfterHeader bool
	DelayOnBan       bool
	BanDelay         time.Duration
	FailOpen         bool
}

// ShieldOptionsFromConfig copies the request-layer settings out of cfg.
func ShieldOptionsFromConfig(cfg config.ShieldConfig) ShieldOptions {
	return ShieldOptions{
		PathPrefix:       cfg.PathPrefix,
		ErrorMessage:     cfg.ErrorMessage,
		RetryAfterHeader: cfg.RetryAfterHeader,
		DelayOnBan:       cfg.DelayOnBan,
		BanDelay:         cfg.BanDelay,
		FailOpen:         cfg.FailOpen,
	}
}

// ShieldMiddleware guards every path under opts.PathPrefix. Rejected requests
// get 429 with the configured message and, optionally, Retry-After. Requests
// rejected by an active ban are held for opts.BanDelay first unless the
// client goes away. Storage failures pass the request through when
// opts.FailOpen is set and answer 503 otherwise.
func ShieldMiddleware(admitter Admitter, opts ShieldOptions, log logger.Logger) gin.HandlerFunc {
	if opts.PathPrefix == "" {
		opts.PathPrefix = constants.DefaultPathPrefix
	}
	if opts.ErrorMessage == "" {
		opts.ErrorMessage = constants.DefaultErrorMessage
	}
	log = log.WithComponent("shield_middleware")

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !strings.HasPrefix(path, opts.PathPrefix) {
			c.Next()
			return
		}

		identity := c.ClientIP()
		if identity == "" {
			identity = constants.UnknownIdentity
		}
		c.Set(string(constants.ContextKeyIdentity), identity)

		ctx := c.Request.Context()
		result, err := admitter.Admit(ctx, identity, path)
		if err != nil {
			if opts.FailOpen {
				log.Warn(ctx, "Admission failed, failing open",
					logger.String("identity", identity),
					logger.String("path", path),
					logger.String("error", err.Error()),
				)
				c.Next()
				return
			}
			log.Error(ctx, "Admission failed, failing closed", err, logger.String("identity", identity))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.ErrorResponse(err, traceID(ctx)))
			return
		}

		if result.Allowed {
			c.Next()
			return
		}

		if result.Reason == constants.ReasonBanned && opts.DelayOnBan && opts.BanDelay > 0 {
			timer := time.NewTimer(opts.BanDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				c.Abort()
				return
			}
		}

		if opts.RetryAfterHeader {
			c.Header(constants.HeaderRetryAfter, strconv.Itoa(result.RetryAfterSeconds))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.RejectionBody{Error: opts.ErrorMessage})
	}
}

func traceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

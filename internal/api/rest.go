package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/api/conversions"
	"github.com/hbomb79/Phonograph/internal/api/jobs"
	"github.com/hbomb79/Phonograph/internal/api/progress"
	"github.com/hbomb79/Phonograph/internal/api/util"
	"github.com/hbomb79/Phonograph/internal/http/websocket"
	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr    string        `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
		RateLimit   float64       `yaml:"rate_limit" env:"API_RATE_LIMIT" env-default:"5"`
		RateBurst   int           `yaml:"rate_burst" env:"API_RATE_BURST" env-default:"10"`
		RateExpiry  time.Duration `yaml:"rate_expiry" env:"API_RATE_EXPIRY" env-default:"3m"`
		CORSOrigins []string      `yaml:"cors_origins" env:"API_CORS_ORIGINS" env-separator:"," env-default:"*"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// Services is the union of everything the controllers need from the
	// core of Phonograph.
	Services struct {
		Resolver conversions.Resolver
		Pipeline conversions.Pipeline
		Jobs     jobs.Service
		Progress progress.Tracker
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsibility
	// is to create the routes Phonograph exposes and to manage ongoing web socket connections.
	RestGateway struct {
		*broadcaster
		config                *RestConfig
		ec                    *echo.Echo
		socket                *websocket.SocketHub
		services              Services
		conversionsController controller
		jobsController        *jobs.Controller
		progressController    controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers.
func NewRestGateway(config *RestConfig, services Services) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.HTTPErrorHandler = util.GetHTTPErrorHandler(ec.DefaultHTTPErrorHandler)

	validate := validator.New()
	jobsController := jobs.New(validate, services.Jobs, services.Progress)

	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:           newBroadcaster(socket, services.Jobs, jobsController, services.Progress),
		config:                config,
		ec:                    ec,
		socket:                socket,
		services:              services,
		conversionsController: conversions.New(validate, services.Resolver, services.Pipeline),
		jobsController:        jobsController,
		progressController:    progress.New(services.Progress),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: config.CORSOrigins}))
	ec.Pre(middleware.AddTrailingSlash())

	socket.BindCommand(TITLE_JOB_PROGRESS, gateway.wsJobProgress)
	socket.WithConnectionCallback(gateway.welcomeBody)
	ec.GET("/api/phonograph/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	v1 := ec.Group("/api/phonograph/v1", newRateLimiter(config))
	gateway.conversionsController.SetRoutes(v1)

	jobs := v1.Group("/jobs")
	gateway.jobsController.SetRoutes(jobs)

	progress := v1.Group("/progress")
	gateway.progressController.SetRoutes(progress)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// Handler exposes the router so it can be served without binding a port.
func (gateway *RestGateway) Handler() http.Handler { return gateway.ec }

// Socket returns the hub serving the activity stream.
func (gateway *RestGateway) Socket() *websocket.SocketHub { return gateway.socket }

// wsJobProgress replies to the sender with the latest progress of the
// job ID provided.
func (gateway *RestGateway) wsJobProgress(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	if err := message.ValidateArguments(map[string]string{"id": "string"}); err != nil {
		return err
	}

	id, err := uuid.Parse(message.Body["id"].(string))
	if err != nil {
		return errors.New("job ID is not a valid UUID")
	}

	snapshot, ok := gateway.services.Progress.Get(id)
	if !ok {
		return errors.New("no progress recorded for this job")
	}

	hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]interface{}{"payload": snapshot}, websocket.Response))
	return nil
}

func (gateway *RestGateway) welcomeBody() map[string]interface{} {
	return map[string]interface{}{
		"jobs":     util.ApplyConversion(gateway.services.Jobs.List(), gateway.jobsController.NewDto),
		"progress": gateway.services.Progress.Latest(),
	}
}

// newRateLimiter limits each client IP to the configured request rate,
// responding with TOO_MANY_REQUESTS once the burst is spent. A zero
// rate disables limiting.
func newRateLimiter(config *RestConfig) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(config.RateLimit),
		Burst:     config.RateBurst,
		ExpiresIn: config.RateExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(echo.Context) bool { return config.RateLimit <= 0 },
		Store:   store,
		ErrorHandler: func(ec echo.Context, err error) error {
			return util.APIError{Status: http.StatusForbidden, Code: util.CodeInvalidRequest, Message: "Unable to identify client", InternalMessage: err.Error()}
		},
		DenyHandler: func(ec echo.Context, identifier string, err error) error {
			return util.APIError{Status: http.StatusTooManyRequests, Code: util.CodeTooManyRequests, Message: "Too many requests, slow down"}
		},
	})
}

package xhttp

import (
	"reflect"
	"runtime"
	"slices"
	"time"

	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/valyala/fasthttp"
)

type Server = fasthttp.Server

type ServerOption struct {
	// IdleTimeout closes keep-alive connections nobody uses, so idle clients
	// can not exhaust file descriptors.
	IdleTimeout time.Duration

	// MaxRequestBodySize caps request bodies. Gateway notifications are a few KB.
	MaxRequestBodySize int

	ReadBufferSize  int
	WriteBufferSize int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration

	Concurrency   int
	MaxConnsPerIP int

	Name   string
	Logger logger.Logger
}

var DefaultServerOption = ServerOption{
	IdleTimeout:        10 * time.Second,
	MaxRequestBodySize: 1 * 1024 * 1024,
	ReadBufferSize:     4 * 1024, // also the max header size
	WriteBufferSize:    4 * 1024,
	ReadTimeout:        10 * time.Second,
	WriteTimeout:       10 * time.Second,
	Concurrency:        10_000,
	MaxConnsPerIP:      1_000,
}

type Engine struct {
	*Router
	*Server
	middle []MiddlewareFunc
}

func newServer(options ServerOption) *fasthttp.Server {
	l := options.Logger
	if l == nil {
		l = logger.GetLogger()
	}
	return &fasthttp.Server{
		Handler:                      NotFoundHandler,
		ErrorHandler:                 errorHandler,
		Name:                         options.Name,
		Concurrency:                  options.Concurrency,
		ReadBufferSize:               options.ReadBufferSize,
		WriteBufferSize:              options.WriteBufferSize,
		ReadTimeout:                  options.ReadTimeout,
		WriteTimeout:                 options.WriteTimeout,
		IdleTimeout:                  options.IdleTimeout,
		MaxConnsPerIP:                options.MaxConnsPerIP,
		MaxRequestBodySize:           options.MaxRequestBodySize,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		NoDefaultServerHeader:        true,
		NoDefaultDate:                true,
		NoDefaultContentType:         true,
		CloseOnShutdown:              true,
		Logger:                       l,
	}
}

func errorHandler(ctx *RequestCtx, err error) {
	logger.Warn("[xhttp] request error", "error", err, "ip", ctx.RemoteIP().String())
	ctx.Error(StatusText(StatusBadRequest), StatusBadRequest)
}

func NewServer(options ServerOption) *Engine {
	return &Engine{
		Server: newServer(options),
		Router: NewRouter(),
	}
}

// CreateServer returns an engine with the default options and router.
func CreateServer() *Engine {
	s := NewServer(DefaultServerOption)
	s.Router = CreateDefaultRouter()
	return s
}

func (e *Engine) ListenAndServe(addr string) error {
	e.DoRouting()
	e.Server.Logger.Printf("[xhttp] server is listening on %s", addr)
	return e.Server.ListenAndServe(addr)
}

// DoRouting installs the router behind the middleware chain. Middlewares run
// in the order they were added.
func (e *Engine) DoRouting() {
	for method, routes := range e.Router.List() {
		for _, r := range routes {
			e.Server.Logger.Printf("[xhttp] method: %s, path: %s", method, r)
		}
	}

	e.Server.Handler = e.Router.Handler
	middle := slices.Clone(e.middle)
	slices.Reverse(middle)
	for i, m := range middle {
		e.Server.Handler = m(e.Server.Handler)
		e.Server.Logger.Printf("[xhttp] middleware %d registered - %s", len(middle)-i, runtime.FuncForPC(reflect.ValueOf(m).Pointer()).Name())
	}
}

// Handler returns the routed handler chain. Tests serve it without a listener.
func (e *Engine) Handler() RequestHandler {
	e.DoRouting()
	return e.Server.Handler
}

// Use adds middleware to the end of the chain.
func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// Shutdown waits for active connections to finish.
func (e *Engine) Shutdown() {
	e.Server.Logger.Printf("[xhttp] server is shutting down")
	if err := e.Server.Shutdown(); err != nil {
		e.Server.Logger.Printf("[xhttp] error while shutting down: %v", err)
	}
}

package auth

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nativeoauth/codegrant/pkg/metrics"
	"github.com/nativeoauth/codegrant/pkg/ratelimit"
)

const (
	pageSuccess = "Please return to the application."
	pageError   = "Error occurred. Please check the application command line."
	pageMissing = "Error occurred. Missing argument in callback "
)

var callbackPage = template.Must(template.New("callback").Funcs(sprig.FuncMap()).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{ .Title | title }}</title></head>
<body>
<p>{{ .Message }}</p>
{{- if .Detail }}
<p><code>{{ .Detail | trunc 256 }}</code></p>
{{- end }}
</body>
</html>
`))

// CallbackResult is what the provider redirected back with. Exactly one of
// Code or Error is set; MissingParam names the absent parameter when the
// redirect was malformed.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	MissingParam     string
	ReceivedAt       time.Time
}

func (r CallbackResult) Failed() bool {
	return r.Error != "" || r.MissingParam != ""
}

func (r CallbackResult) kind() string {
	switch {
	case r.MissingParam != "":
		return "missing_parameter"
	case r.Error != "":
		return "error"
	default:
		return "code"
	}
}

type ListenerConfig struct {
	// Address is the host:port to bind.
	Address string
	// Path is the single routed callback path. Defaults to DefaultCallbackPath.
	Path    string
	Logger  *zap.SugaredLogger
	// RateLimit bounds requests per client. Defaults to
	// ratelimit.DefaultCallbackConfig.
	RateLimit *ratelimit.Config
}

// CallbackListener serves the redirect path on a loopback address and keeps
// the first callback it receives.
type CallbackListener struct {
	cfg     ListenerConfig
	log     *zap.SugaredLogger
	limiter *ratelimit.ClientLimiter

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	served chan struct{}
	closed bool

	publish sync.Once
	done    chan struct{}
	result  CallbackResult

	shutdownOnce sync.Once
	shutdownErr  error
}

func NewCallbackListener(cfg ListenerConfig) *CallbackListener {
	if cfg.Path == "" {
		cfg.Path = DefaultCallbackPath
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.RateLimit == nil {
		def := ratelimit.DefaultCallbackConfig()
		cfg.RateLimit = &def
	}
	return &CallbackListener{
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
	}
}

// Start binds the configured address and serves on a background goroutine.
func (l *CallbackListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("callback listener already shut down")
	}
	if l.server != nil {
		return errors.New("callback listener already started")
	}
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return &BindError{Address: l.cfg.Address, Err: err}
	}
	l.addr = ln.Addr()
	l.limiter = ratelimit.New(*l.cfg.RateLimit)
	l.limiter.OnReject = func(string) {
		metrics.CallbackRequests.WithLabelValues("rate_limited").Inc()
	}
	l.server = &http.Server{
		Handler:           l.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.served = make(chan struct{})
	server, served := l.server, l.served
	go func() {
		defer close(served)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Errorw("Callback listener stopped unexpectedly", "error", err)
		}
	}()
	l.log.Infow("Listening for authorization callback", "address", ln.Addr().String(), "path", l.cfg.Path)
	return nil
}

func (l *CallbackListener) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), l.limiter.Middleware())
	engine.GET(l.cfg.Path, l.handleCallback)
	return engine
}

func (l *CallbackListener) handleCallback(c *gin.Context) {
	stored, first := l.store(parseCallback(c.Request.URL.Query()))
	if first {
		metrics.CallbackRequests.WithLabelValues(stored.kind()).Inc()
		l.log.Infow("Authorization callback received", "result", stored.kind())
	} else {
		metrics.CallbackRequests.WithLabelValues("duplicate").Inc()
		l.log.Debugw("Ignoring repeated authorization callback", "result", stored.kind())
	}
	l.render(c, stored)
}

func parseCallback(q url.Values) CallbackResult {
	now := time.Now()
	if q.Has("error") {
		return CallbackResult{
			Error:            q.Get("error"),
			ErrorDescription: q.Get("error_description"),
			State:            q.Get("state"),
			ReceivedAt:       now,
		}
	}
	for _, param := range []string{"code", "state"} {
		if q.Get(param) == "" {
			return CallbackResult{
				Error:            "invalid_request",
				ErrorDescription: "missing argument in callback: " + param,
				MissingParam:     param,
				State:            q.Get("state"),
				ReceivedAt:       now,
			}
		}
	}
	return CallbackResult{Code: q.Get("code"), State: q.Get("state"), ReceivedAt: now}
}

// store publishes r if no result has been published yet and returns the
// result that is in effect. The slot is written before done is closed.
func (l *CallbackListener) store(r CallbackResult) (CallbackResult, bool) {
	first := false
	l.publish.Do(func() {
		l.result = r
		first = true
		close(l.done)
	})
	return l.result, first
}

func (l *CallbackListener) render(c *gin.Context, r CallbackResult) {
	data := struct {
		Title   string
		Message string
		Detail  string
	}{Title: "authorization complete", Message: pageSuccess}
	status := http.StatusOK
	switch {
	case r.MissingParam != "":
		data.Title = "authorization failed"
		data.Message = pageMissing + r.MissingParam
		status = http.StatusBadRequest
	case r.Error != "":
		data.Title = "authorization failed"
		data.Message = pageError
		data.Detail = r.Error
		status = http.StatusBadRequest
	}
	var buf bytes.Buffer
	if err := callbackPage.Execute(&buf, data); err != nil {
		l.log.Errorw("Failed to render callback page", "error", err)
		c.String(status, data.Message)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// Done is closed once a callback result has been published.
func (l *CallbackListener) Done() <-chan struct{} {
	return l.done
}

// Result returns the published callback, if any.
func (l *CallbackListener) Result() (CallbackResult, bool) {
	select {
	case <-l.done:
		return l.result, true
	default:
		return CallbackResult{}, false
	}
}

// Addr is the bound address, nil before Start.
func (l *CallbackListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Shutdown stops serving and releases the socket. Calls after the first
// return the first call's result.
func (l *CallbackListener) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		server, served := l.server, l.served
		l.mu.Unlock()
		if server == nil {
			return
		}
		l.log.Debugw("Shutting down callback listener", "address", l.addr.String())
		defer l.limiter.Stop()
		err := server.Shutdown(ctx)
		if err != nil {
			_ = server.Close()
		}
		<-served
		l.shutdownErr = err
	})
	return l.shutdownErr
}

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nativeoauth/codegrant/pkg/metrics"
)

type Mode int

const (
	// ModeBrowser opens the authorization URL in the user's browser and
	// waits for the redirect on the callback listener.
	ModeBrowser Mode = iota
	// ModeHeadless requests the authorization URL directly and uses the
	// requestId of the resolved URL as the authorization code.
	ModeHeadless
)

const defaultShutdownTimeout = 5 * time.Second

// Flow runs one authorization code grant. A Flow is single-use.
type Flow struct {
	Config     *OAuthConfig
	Tokens     TokenExchanger
	Authorizer AuthorizationRequester
	// OpenBrowser defaults to the platform browser. Set to a func returning
	// an error to only print the URL.
	OpenBrowser func(url string) error
	Mode        Mode
	// ResolveAuthorizationURL requests the authorization URL first and
	// opens the URL the provider redirected to.
	ResolveAuthorizationURL bool
	Logger                  *zap.SugaredLogger
	// Out receives user-facing instructions. Nothing is printed when nil.
	Out         io.Writer
	NewListener func(ListenerConfig) *CallbackListener
	// ShutdownTimeout bounds the graceful listener shutdown.
	ShutdownTimeout time.Duration

	mu    sync.Mutex
	state FlowState
	ran   bool
	log   *zap.SugaredLogger
}

func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) transition(to FlowState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !canTransition(f.state, to) {
		f.log.Errorw("Rejected invalid flow transition", "from", f.state.String(), "to", to.String())
		return
	}
	f.log.Debugw("Flow transition", "from", f.state.String(), "to", to.String())
	f.state = to
}

func (f *Flow) begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ran {
		return ErrFlowAlreadyRun
	}
	f.ran = true
	f.state = StateInit
	log := f.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	f.log = log.With("flow", uuid.NewString())
	return nil
}

// Run drives the flow to a token record or a terminal error. The callback
// listener is shut down before Run returns on every path.
func (f *Flow) Run(ctx context.Context) (record *TokenRecord, err error) {
	if err := f.begin(); err != nil {
		return nil, err
	}
	start := time.Now()
	metrics.FlowsStarted.Inc()
	defer func() {
		outcome := flowOutcome(err)
		metrics.FlowsCompleted.WithLabelValues(outcome).Inc()
		metrics.FlowDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		if err != nil {
			f.transition(StateFailed)
			f.log.Warnw("Authorization flow failed", "outcome", outcome, "error", err)
			return
		}
		f.log.Infow("Authorization flow completed", "duration", time.Since(start).String())
	}()

	if f.Config == nil {
		return nil, errors.New("oauth config is required")
	}
	if f.Tokens == nil {
		return nil, errors.New("token exchanger is required")
	}
	f.log.Infow("Starting authorization code flow", "config", f.Config)

	newListener := f.NewListener
	if newListener == nil {
		newListener = NewCallbackListener
	}
	listener := newListener(ListenerConfig{
		Address: f.Config.BindAddress(),
		Path:    f.Config.CallbackPath(),
		Logger:  f.log,
	})
	if err := listener.Start(); err != nil {
		return nil, err
	}
	defer f.shutdown(listener)
	f.transition(StateListenerStarted)

	result, err := f.awaitAuthorization(ctx, listener)
	if err != nil {
		return nil, err
	}
	if err := f.validate(result); err != nil {
		return nil, err
	}
	f.transition(StateValidated)

	f.log.Info("Authentication successful, requesting token")
	record, err = f.Tokens.ExchangeCode(ctx, f.Config, result.Code)
	if err != nil {
		return nil, err
	}
	f.transition(StateTokenExchanged)
	f.transition(StateDone)
	return record, nil
}

func (f *Flow) awaitAuthorization(ctx context.Context, listener *CallbackListener) (CallbackResult, error) {
	if f.Mode == ModeHeadless {
		return f.headless(ctx, listener)
	}

	authURL, err := f.Config.AuthCodeURL()
	if err != nil {
		return CallbackResult{}, err
	}
	if f.ResolveAuthorizationURL {
		resp, err := f.requestAuthorization(ctx)
		if err != nil {
			return CallbackResult{}, err
		}
		authURL = resp.URL
	}
	f.launchBrowser(authURL)

	f.transition(StateAwaitingCallback)
	select {
	case <-ctx.Done():
		f.log.Infow("Authorization cancelled while waiting for callback", "reason", ctx.Err())
		f.shutdown(listener)
		f.transition(StateCancelled)
		return CallbackResult{}, &cancelledError{cause: ctx.Err()}
	case <-listener.Done():
	}

	f.shutdown(listener)
	result, _ := listener.Result()
	if result.Failed() {
		f.transition(StateCallbackError)
	} else {
		f.transition(StateCallbackOK)
	}
	return result, nil
}

func (f *Flow) headless(ctx context.Context, listener *CallbackListener) (CallbackResult, error) {
	resp, err := f.requestAuthorization(ctx)
	f.shutdown(listener)
	if err != nil {
		return CallbackResult{}, err
	}
	if resp.RequestID == "" {
		return CallbackResult{}, &MissingCallbackParameterError{Param: "requestId"}
	}
	f.transition(StateCallbackOK)
	return CallbackResult{Code: resp.RequestID, State: f.Config.State(), ReceivedAt: time.Now()}, nil
}

func (f *Flow) requestAuthorization(ctx context.Context) (*AuthorizationResponse, error) {
	if f.Authorizer == nil {
		return nil, errors.New("authorization requester is required")
	}
	resp, err := f.Authorizer.RequestAuthorization(ctx, f.Config)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &cancelledError{cause: ctx.Err()}
		}
		return nil, err
	}
	return resp, nil
}

// launchBrowser never fails the flow; the user can still open the URL by hand.
func (f *Flow) launchBrowser(authURL string) {
	f.log.Infow("Opening authorization URL", "url", RedactURL(authURL))
	open := f.OpenBrowser
	if open == nil {
		open = OpenBrowser
	}
	if err := open(authURL); err != nil {
		f.log.Warnw("Could not open browser", "error", err)
		if f.Out != nil {
			_, _ = fmt.Fprintf(f.Out, "Open the following URL in your browser:\n%s\n", authURL)
		}
		return
	}
	if f.Out != nil {
		_, _ = fmt.Fprintln(f.Out, "Waiting for the authorization callback in your browser...")
	}
}

func (f *Flow) validate(result CallbackResult) error {
	if result.MissingParam != "" {
		return &MissingCallbackParameterError{Param: result.MissingParam}
	}
	if result.Error != "" {
		if result.State != "" && !f.stateMatches(result.State) {
			return &StateMismatchError{Received: result.State}
		}
		return &AuthorizationDeniedError{Code: result.Error, Description: result.ErrorDescription}
	}
	if !f.stateMatches(result.State) {
		return &StateMismatchError{Received: result.State}
	}
	return nil
}

func (f *Flow) stateMatches(received string) bool {
	return subtle.ConstantTimeCompare([]byte(received), []byte(f.Config.State())) == 1
}

func (f *Flow) shutdown(listener *CallbackListener) {
	timeout := f.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := listener.Shutdown(ctx); err != nil {
		f.log.Warnw("Callback listener shutdown was not graceful", "error", err)
	}
}

// Refresh exchanges the refresh token of record for a new record.
func (f *Flow) Refresh(ctx context.Context, record *TokenRecord) (*TokenRecord, error) {
	if record == nil || record.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	if f.Config == nil || f.Tokens == nil {
		return nil, errors.New("oauth config and token exchanger are required")
	}
	return f.Tokens.ExchangeRefresh(ctx, f.Config, record.RefreshToken)
}

func flowOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrAuthorizationDenied):
		return "denied"
	case errors.Is(err, ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, ErrMissingCallbackParameter):
		return "missing_parameter"
	case errors.Is(err, ErrBind):
		return "bind_error"
	case errors.Is(err, ErrTokenExchange):
		return "exchange_error"
	default:
		return "error"
	}
}

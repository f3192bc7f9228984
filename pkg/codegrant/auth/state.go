package auth

import "fmt"

// FlowState is a step of the authorization code flow state machine.
type FlowState int

const (
	StateInit FlowState = iota
	StateListenerStarted
	StateAwaitingCallback
	StateCallbackOK
	StateCallbackError
	StateCancelled
	StateValidated
	StateTokenExchanged
	StateDone
	StateFailed
)

var flowStateNames = map[FlowState]string{
	StateInit:             "Init",
	StateListenerStarted:  "ListenerStarted",
	StateAwaitingCallback: "AwaitingCallback",
	StateCallbackOK:       "CallbackOk",
	StateCallbackError:    "CallbackError",
	StateCancelled:        "Cancelled",
	StateValidated:        "StateValidated",
	StateTokenExchanged:   "TokenExchanged",
	StateDone:             "Done",
	StateFailed:           "Failed",
}

func (s FlowState) String() string {
	if name, ok := flowStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("FlowState(%d)", int(s))
}

// Terminal states accept no further transitions.
func (s FlowState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// flowTransitions lists the allowed successor states. Headless flows skip
// the wait and go from ListenerStarted directly to CallbackOK.
var flowTransitions = map[FlowState][]FlowState{
	StateInit:             {StateListenerStarted, StateFailed},
	StateListenerStarted:  {StateAwaitingCallback, StateCallbackOK, StateFailed},
	StateAwaitingCallback: {StateCallbackOK, StateCallbackError, StateCancelled},
	StateCallbackOK:       {StateValidated, StateFailed},
	StateCallbackError:    {StateFailed},
	StateCancelled:        {StateFailed},
	StateValidated:        {StateTokenExchanged, StateFailed},
	StateTokenExchanged:   {StateDone},
}

func canTransition(from, to FlowState) bool {
	for _, next := range flowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

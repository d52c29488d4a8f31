// ABOUTME: Interactive (multi-stage) authentication engine
// ABOUTME: One Advance call applies a challenge to token-carried progress

package auth

import (
	"context"
	"log/slog"

	"github.com/squall-im/squall/internal/id"
	"github.com/squall-im/squall/internal/store"
	"github.com/squall-im/squall/internal/tokens"
)

// Prompt is the body of the 401 re-prompt response when interactive auth is
// not yet complete. Failed is true when the just-submitted challenge was
// rejected; the HTTP layer turns that into the error fields of the wire
// body.
type Prompt struct {
	Failed    bool                 `json:"-"`
	Completed []id.LoginType       `json:"completed"`
	Flows     []id.InteractiveFlow `json:"flows"`
	Params    map[id.LoginType]any `json:"params"`
	Session   string               `json:"session"`
}

// Interactive runs multi-stage authentication negotiations. It is stateless:
// all progress lives inside signed session tokens, so concurrent
// negotiations need no coordination here.
type Interactive struct {
	codec  *tokens.Codec
	flows  []id.InteractiveFlow
	params map[id.LoginType]any
	logger *slog.Logger
}

// NewInteractive builds an engine for the configured acceptable flows and
// per-stage client parameters.
func NewInteractive(codec *tokens.Codec, flows []id.InteractiveFlow, params map[id.LoginType]any, logger *slog.Logger) *Interactive {
	if params == nil {
		params = map[id.LoginType]any{}
	}
	return &Interactive{
		codec:  codec,
		flows:  flows,
		params: params,
		logger: logger.With("component", "interactive-auth"),
	}
}

// Advance applies one negotiation round.
//
// session may be nil for the first round, and ch may be nil when the client
// has not submitted a challenge yet. Carried progress only counts when the
// session was issued for the same user; a session presented for a different
// user restarts the negotiation from zero, so stages verified as one
// identity can never complete a flow for another. The device is not part of
// that binding because a fresh device identifier is generated each round
// when the client leaves it unset.
//
// When the accumulated stages exactly match a configured flow, Advance
// reports done and the caller proceeds to the protected operation.
// Otherwise it returns the re-prompt, always carrying a freshly signed
// session token so the client can retry with a fresh expiry. A storage
// failure during verification is returned as an error and must surface as a
// server error, never as a failed challenge.
func (ia *Interactive) Advance(ctx context.Context, st store.Store, user id.UserID, device id.DeviceID, session *tokens.SessionToken, ch Challenge) (done bool, prompt *Prompt, err error) {
	var completed []id.LoginType
	if session != nil {
		if session.Subject == user {
			completed = session.Completed
		} else {
			ia.logger.Warn("session presented for a different user",
				"session_user", session.Subject.String(), "user_id", user.String())
		}
	}

	failed := false
	if ch != nil {
		stage, ok, err := ch.Passes(ctx, st, user, device)
		if err != nil {
			return false, nil, err
		}
		if ok {
			// Re-submitting an already-satisfied stage is a no-op.
			if !id.StagesContain(completed, stage) {
				completed = append(completed, stage)
			}
		} else {
			failed = true
			ia.logger.Info("challenge rejected", "user_id", user.String(), "stage", string(StageOf(ch)))
		}
	}

	if id.FlowsContain(ia.flows, completed) {
		return true, nil, nil
	}

	raw, err := ia.codec.Sign(ia.codec.Session(user, device, completed))
	if err != nil {
		return false, nil, err
	}
	return false, &Prompt{
		Failed:    failed,
		Completed: completed,
		Flows:     ia.flows,
		Params:    ia.params,
		Session:   raw,
	}, nil
}

// Flows returns the configured acceptable flows.
func (ia *Interactive) Flows() []id.InteractiveFlow {
	return ia.flows
}

package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/foraling/foraling-server/internal/application/identity"
	"github.com/foraling/foraling-server/internal/application/otp"
	"github.com/foraling/foraling-server/internal/domain"
	"github.com/foraling/foraling-server/internal/metrics"
	"github.com/gorilla/websocket"
)

type profileStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// TokenIssuer mints the bearer handed out at login-complete.
type TokenIssuer interface {
	Sign(userID, username string) (string, error)
}

// Gateway runs the session channel: one WebSocket per client walking the
// registration, sign-in or reset flow as typed JSON frames.
type Gateway struct {
	engine    otp.Service
	lifecycle identity.Service
	profiles  profileStore
	tokens    TokenIssuer // nil disables bearer issuance

	upgrader websocket.Upgrader

	// completionDelay spaces the terminal event out from its success alert
	// so clients can show the confirmation before navigating.
	completionDelay time.Duration
}

func NewGateway(engine otp.Service, lifecycle identity.Service, profiles profileStore, tokens TokenIssuer, allowedOrigins []string) *Gateway {
	return &Gateway{
		engine:    engine,
		lifecycle: lifecycle,
		profiles:  profiles,
		tokens:    tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		completionDelay: 2 * time.Second,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := map[string]bool{}
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		return set[r.Header.Get("Origin")]
	}
}

// Handle upgrades the request and runs the frame loop until the client
// disconnects.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sess := newSession(conn)
	defer sess.close()

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		g.dispatch(r.Context(), sess, frame)
	}
}

func (g *Gateway) dispatch(ctx context.Context, sess *session, frame Frame) {
	switch frame.Type {
	case msgRequestOTP:
		var req otpRequest
		decode(frame.Data, &req)
		g.handleRequestOTP(ctx, sess, req)
	case msgCooldownPoll:
		var req cooldownPoll
		decode(frame.Data, &req)
		g.handleCooldownPoll(sess, req.Email)
	case msgValidateOTP:
		var req otpValidate
		decode(frame.Data, &req)
		g.handleValidateOTP(ctx, sess, req)
	case msgSetUsername:
		var req usernameStep
		decode(frame.Data, &req)
		g.handleSetUsername(ctx, sess, req)
	case msgSetName:
		var req nameStep
		decode(frame.Data, &req)
		g.handleSetName(sess, req)
	case msgCommit:
		var req commitStep
		decode(frame.Data, &req)
		g.handleCommit(ctx, sess, req)
	case msgResetPass:
		var req resetStep
		decode(frame.Data, &req)
		g.handleResetPassword(ctx, sess, req)
	case msgSignIn:
		var req signInStep
		decode(frame.Data, &req)
		g.handleSignIn(ctx, sess, req)
	case msgProfile:
		var req profileQuery
		decode(frame.Data, &req)
		g.handleProfile(ctx, sess, req.UserID)
	default:
		sess.send(alertFrame("unknown message type", "error"))
	}
}

func (g *Gateway) handleRequestOTP(ctx context.Context, sess *session, req otpRequest) {
	purpose := otp.Purpose(req.Purpose)
	err := g.engine.RequestOTP(ctx, req.Email, purpose)
	switch {
	case err == nil:
		metrics.OTPRequests.WithLabelValues(req.Purpose, "sent").Inc()
		// The send control stays locked for the countdown window; the
		// terminal cooldown frame re-arms it.
		sess.send(Frame{Type: evSendButton, Data: buttonData{Enabled: false}})
		sess.send(Frame{Type: evOTPSent})
		sess.send(alertFrame("verification code sent", "success"))
		g.streamCooldown(sess, req.Email)
	case errors.Is(err, domain.ErrCooldownActive):
		metrics.OTPRequests.WithLabelValues(req.Purpose, "cooldown_active").Inc()
		sess.send(alertFrame("a code was sent recently, wait for the countdown", "error"))
		g.streamCooldown(sess, req.Email)
	case errors.Is(err, domain.ErrDeliveryFailed):
		metrics.OTPRequests.WithLabelValues(req.Purpose, "delivery_failed").Inc()
		// No countdown was started, so the button re-arms immediately.
		sess.send(Frame{Type: evSendButton, Data: buttonData{Enabled: true}})
		sess.send(alertFrame("could not deliver the code, try again", "error"))
	default:
		metrics.OTPRequests.WithLabelValues(req.Purpose, "rejected").Inc()
		sess.send(Frame{Type: evSendButton, Data: buttonData{Enabled: true}})
		sess.send(g.alertFor(err))
	}
}

// streamCooldown forwards countdown ticks for email to this session and
// finishes with the "Send" marker that re-arms the client's button.
func (g *Gateway) streamCooldown(sess *session, email string) {
	ch, unsub, ok := g.engine.Subscribe(email)
	if !ok {
		sess.send(Frame{Type: evCooldown, Data: cooldownData{Label: "Send"}})
		return
	}
	sess.trackUnsub(email, unsub)
	go func() {
		for {
			select {
			case n, open := <-ch:
				if !open {
					sess.send(Frame{Type: evCooldown, Data: cooldownData{Label: "Send"}})
					return
				}
				sess.send(Frame{Type: evCooldown, Data: cooldownData{Remaining: n}})
			case <-sess.ctx.Done():
				return
			}
		}
	}()
}

func (g *Gateway) handleCooldownPoll(sess *session, email string) {
	if _, active := g.engine.Remaining(email); !active {
		sess.send(Frame{Type: evCooldown, Data: cooldownData{Label: "Send"}})
		return
	}
	g.streamCooldown(sess, email)
}

func (g *Gateway) handleValidateOTP(ctx context.Context, sess *session, req otpValidate) {
	ok, err := g.engine.ValidateOTP(ctx, req.Email, req.Code)
	if err != nil {
		metrics.OTPValidations.WithLabelValues("error").Inc()
		sess.send(g.alertFor(err))
		return
	}
	if !ok {
		metrics.OTPValidations.WithLabelValues("invalid").Inc()
		sess.send(alertFrame("incorrect verification code", "error"))
		return
	}
	metrics.OTPValidations.WithLabelValues("valid").Inc()
	sess.markEmailVerified(req.Email)
	sess.send(Frame{Type: evOTPValid})
}

func (g *Gateway) handleSetUsername(ctx context.Context, sess *session, req usernameStep) {
	if sess.progressEmail() == "" {
		sess.send(alertFrame("verify your email first", "error"))
		return
	}
	if err := g.lifecycle.CheckUsername(ctx, req.Username, req.Age); err != nil {
		sess.send(g.alertFor(err))
		return
	}
	sess.markUsernameOK()
	sess.send(Frame{Type: evUsernameOK})
}

func (g *Gateway) handleSetName(sess *session, req nameStep) {
	if !sess.usernameAccepted() {
		sess.send(alertFrame("choose a username first", "error"))
		return
	}
	if err := g.lifecycle.CheckName(req.FirstName, req.LastName); err != nil {
		sess.send(g.alertFor(err))
		return
	}
	sess.markNameOK()
	sess.send(Frame{Type: evNameOK})
}

func (g *Gateway) handleCommit(ctx context.Context, sess *session, req commitStep) {
	if !sess.readyToCommit(req.Email) {
		sess.send(alertFrame("finish the previous steps first", "error"))
		return
	}
	u, err := g.lifecycle.Commit(ctx, identity.CommitRequest{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Age:       req.Age,
		Password:  req.Password,
		Confirm:   req.Confirm,
	})
	if err != nil {
		sess.send(g.alertFor(err))
		return
	}
	sess.send(alertFrame("registration successful", "success"))
	sess.send(Frame{Type: evActionButton, Data: buttonData{Enabled: false}})
	sess.after(g.completionDelay, func() {
		sess.send(Frame{Type: evActionButton, Data: buttonData{Enabled: true}})
		sess.send(Frame{Type: evRegistered, Data: registeredData{UserID: u.UserID}})
	})
}

func (g *Gateway) handleResetPassword(ctx context.Context, sess *session, req resetStep) {
	if !sess.emailVerified(req.Email) {
		sess.send(alertFrame("verify your email first", "error"))
		return
	}
	if _, err := g.lifecycle.ResetPassword(ctx, req.Email, req.Password, req.Confirm); err != nil {
		sess.send(g.alertFor(err))
		return
	}
	sess.send(alertFrame("password changed", "success"))
	sess.send(Frame{Type: evActionButton, Data: buttonData{Enabled: false}})
	sess.after(g.completionDelay, func() {
		sess.send(Frame{Type: evActionButton, Data: buttonData{Enabled: true}})
		sess.send(Frame{Type: evPasswordReset})
	})
}

func (g *Gateway) handleSignIn(ctx context.Context, sess *session, req signInStep) {
	u, err := g.lifecycle.SignIn(ctx, req.Identifier, req.Password)
	if err != nil {
		metrics.SignIns.WithLabelValues("failure").Inc()
		sess.send(g.alertFor(err))
		return
	}
	metrics.SignIns.WithLabelValues("success").Inc()

	var bearer string
	if g.tokens != nil {
		bearer, err = g.tokens.Sign(u.UserID, u.Username)
		if err != nil {
			slog.Warn("bearer issuance failed", "user_id", u.UserID, "err", err)
			bearer = ""
		}
	}

	sess.send(alertFrame("signed in", "success"))
	sess.send(Frame{Type: evActionButton, Data: buttonData{Enabled: false}})
	sess.after(g.completionDelay, func() {
		sess.send(Frame{Type: evActionButton, Data: buttonData{Enabled: true}})
		sess.send(Frame{Type: evLoginComplete, Data: loginData{UserID: u.UserID, Bearer: bearer}})
	})
}

func (g *Gateway) handleProfile(ctx context.Context, sess *session, userID string) {
	if userID == "" {
		sess.send(alertFrame("user id required", "error"))
		return
	}
	u, err := g.profiles.Get(ctx, userID)
	if err != nil {
		sess.send(g.alertFor(err))
		return
	}
	sess.send(Frame{Type: evProfile, Data: profileData{UserID: u.UserID, ProfileImageRef: u.ProfileImageRef}})
}

// alertFor maps a service error to the client-facing alert frame.
func (g *Gateway) alertFor(err error) Frame {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return alertFrame("fill in the form correctly", "error")
	case errors.Is(err, domain.ErrConflict):
		return alertFrame("already in use", "error")
	case errors.Is(err, domain.ErrNotFound):
		return alertFrame("no such user", "error")
	case errors.Is(err, domain.ErrInvalidCredential):
		return alertFrame("wrong password", "error")
	case errors.Is(err, domain.ErrPasswordMismatch):
		return alertFrame("passwords do not match", "error")
	case errors.Is(err, domain.ErrCooldownActive):
		return alertFrame("a code was sent recently, wait for the countdown", "error")
	case errors.Is(err, domain.ErrDeliveryFailed):
		return alertFrame("could not deliver the code, try again", "error")
	default:
		slog.Error("session gateway: internal error", "err", err)
		return alertFrame("something went wrong", "error")
	}
}

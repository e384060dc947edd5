package ws

import "encoding/json"

// Frame is the wire envelope in both directions: a type tag plus a
// type-specific payload.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Inbound frame types.
const (
	msgRequestOTP   = "request-otp"
	msgCooldownPoll = "cooldown-poll"
	msgValidateOTP  = "validate-otp"
	msgSetUsername  = "set-username"
	msgSetName      = "set-name"
	msgCommit       = "commit-registration"
	msgResetPass    = "reset-password"
	msgSignIn       = "sign-in"
	msgProfile      = "profile"
)

// Outbound frame types.
const (
	evAlert         = "alert"
	evSendButton    = "send-button"
	evActionButton  = "action-button"
	evCooldown      = "cooldown"
	evOTPSent       = "otp-sent"
	evOTPValid      = "otp-valid"
	evUsernameOK    = "username-accepted"
	evNameOK        = "name-accepted"
	evRegistered    = "registration-complete"
	evPasswordReset = "password-changed"
	evLoginComplete = "login-complete"
	evProfile       = "profile"
)

type otpRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

type cooldownPoll struct {
	Email string `json:"email"`
}

type otpValidate struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type usernameStep struct {
	Username string `json:"username"`
	Age      int    `json:"age"`
}

type nameStep struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type commitStep struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Age       int    `json:"age"`
	Password  string `json:"password"`
	Confirm   string `json:"confirm"`
}

type resetStep struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

type signInStep struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type profileQuery struct {
	UserID string `json:"user_id"`
}

type alertData struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type buttonData struct {
	Enabled bool `json:"enabled"`
}

// cooldownData streams the countdown; the terminal frame carries
// Label "Send" instead of a remaining value.
type cooldownData struct {
	Remaining int    `json:"remaining,omitempty"`
	Label     string `json:"label,omitempty"`
}

type registeredData struct {
	UserID string `json:"user_id"`
}

type loginData struct {
	UserID string `json:"user_id"`
	Bearer string `json:"bearer,omitempty"`
}

type profileData struct {
	UserID          string `json:"user_id"`
	ProfileImageRef string `json:"profile_image_ref,omitempty"`
}

func alertFrame(message, severity string) Frame {
	return Frame{Type: evAlert, Data: alertData{Message: message, Severity: severity}}
}

// decode remarshals a loosely-typed payload into its concrete shape.
func decode(in interface{}, out interface{}) {
	b, _ := json.Marshal(in)
	_ = json.Unmarshal(b, out)
}

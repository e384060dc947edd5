package domain

import "time"

// User is one identity record. A record whose FirstName is empty is a
// pending registration: the email is reserved and an OTP has been issued,
// but the account is not yet complete. Pending records are deleted when
// their cooldown expires.
type User struct {
	UserID          string    `json:"id" dynamodbav:"user_id"`
	Email           string    `json:"email" dynamodbav:"email"`
	Username        string    `json:"username,omitempty" dynamodbav:"username"`
	FirstName       string    `json:"first_name,omitempty" dynamodbav:"first_name"`
	LastName        string    `json:"last_name,omitempty" dynamodbav:"last_name"`
	Age             int       `json:"age,omitempty" dynamodbav:"age"`
	PasswordHash    string    `json:"-" dynamodbav:"password_hash"`
	OTPCode         string    `json:"-" dynamodbav:"otp_code"`
	ProfileImageRef string    `json:"profile_image_ref,omitempty" dynamodbav:"profile_image_ref"`
	Coins           int       `json:"coins" dynamodbav:"coins"`
	Hearts          int       `json:"hearts" dynamodbav:"hearts"`
	CreatedAt       time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt       time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Pending reports whether this record is a reserved-but-incomplete
// registration. Completed accounts always carry a first name and a
// password hash.
func (u *User) Pending() bool {
	return u.FirstName == "" || u.PasswordHash == ""
}

package accounts

import "portal/internal/session/models"

// Credentials is the payload of the token endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is what the token endpoint returns on success.
type TokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Pair converts the response into the pair owned by the session manager.
func (r TokenResponse) Pair() models.TokenPair {
	return models.TokenPair{AccessToken: r.Access, RefreshToken: r.Refresh}
}

// User is the account representation served by /me and /users.
type User struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email"`
	Username    string  `json:"username"`
	FullName    string  `json:"full_name"`
	PhoneNumber string  `json:"phone_number"`
	DateOfBirth *string `json:"date_of_birth"`
}

// UserUpdate is a partial update. Nil fields are left untouched.
type UserUpdate struct {
	Email       *string `json:"email,omitempty"`
	Username    *string `json:"username,omitempty"`
	FullName    *string `json:"full_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
}

// Empty reports whether the update carries no field.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.Username == nil && u.FullName == nil &&
		u.PhoneNumber == nil && u.DateOfBirth == nil
}

// Registration is the sign-up payload. Optional fields are omitted when empty.
type Registration struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

package accounts

import (
	"time"

	"github.com/asaskevich/govalidator"

	dErrors "portal/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// Validate checks a registration before it is sent.
func (r Registration) Validate() error {
	fields := map[string][]string{}
	if !govalidator.StringLength(r.Username, "1", "150") {
		fields["username"] = append(fields["username"], "username is required (max 150 characters)")
	}
	if r.Email == "" || !govalidator.IsEmail(r.Email) {
		fields["email"] = append(fields["email"], "a valid email address is required")
	}
	if r.Password == "" {
		fields["password"] = append(fields["password"], "password is required")
	}
	if r.PhoneNumber != "" && !govalidator.StringLength(r.PhoneNumber, "1", "20") {
		fields["phone_number"] = append(fields["phone_number"], "phone number is too long")
	}
	if r.DateOfBirth != "" {
		if _, err := time.Parse(dateLayout, r.DateOfBirth); err != nil {
			fields["date_of_birth"] = append(fields["date_of_birth"], "date of birth must be YYYY-MM-DD")
		}
	}
	if len(fields) > 0 {
		return dErrors.WithFields("invalid registration", fields)
	}
	return nil
}

// Validate checks a partial profile update.
func (u UserUpdate) Validate() error {
	if u.Empty() {
		return dErrors.New(dErrors.CodeBadRequest, "nothing to update")
	}
	fields := map[string][]string{}
	if u.Email != nil && !govalidator.IsEmail(*u.Email) {
		fields["email"] = []string{"a valid email address is required"}
	}
	if u.Username != nil && !govalidator.StringLength(*u.Username, "1", "150") {
		fields["username"] = []string{"username must be 1 to 150 characters"}
	}
	if u.DateOfBirth != nil && *u.DateOfBirth != "" {
		if _, err := time.Parse(dateLayout, *u.DateOfBirth); err != nil {
			fields["date_of_birth"] = []string{"date of birth must be YYYY-MM-DD"}
		}
	}
	if len(fields) > 0 {
		return dErrors.WithFields("invalid profile update", fields)
	}
	return nil
}

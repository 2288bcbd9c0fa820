package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"sampleflow/pkg/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// missingMessages names the message returned when a required field is absent,
// keyed by struct field name.
type missingMessages map[string]string

// decodeJSON reads a JSON body into dst and checks its validate tags.
func decodeJSON(r *http.Request, dst any, missing missingMessages) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return domain.ValidationError{Message: "Invalid JSON body"}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0]
			if msg, ok := missing[field.StructField()]; ok && field.Tag() == "required" {
				return domain.ValidationError{Message: msg}
			}
			return domain.ValidationError{Message: "Invalid value for " + field.Field()}
		}
		return domain.ValidationError{Message: err.Error()}
	}
	return nil
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

var credentialsMissing = missingMessages{
	"Email":    "Email address missing",
	"Password": "Password missing",
}

type emailRequest struct {
	Email string `json:"email" validate:"required"`
}

type resetPasswordRequest struct {
	ResetToken  string `json:"reset_token" validate:"required"`
	Email       string `json:"email" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

var resetPasswordMissing = missingMessages{
	"ResetToken":  "Reset token missing",
	"Email":       "Email address missing",
	"NewPassword": "New password missing",
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

var changePasswordMissing = missingMessages{
	"CurrentPassword": "Current password missing",
	"NewPassword":     "New password missing",
}

type primaryKeyRequest struct {
	PrimaryKey string `json:"primary_key" validate:"required"`
}

var primaryKeyMissing = missingMessages{"PrimaryKey": "Primary key missing"}

type resultFileRequest struct {
	PrimaryKey string `json:"primary_key" validate:"required"`
	Filetype   string `json:"filetype"`
}

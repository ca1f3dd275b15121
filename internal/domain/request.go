package domain

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// BookingRequest carries the customer-supplied fields of a new booking.
type BookingRequest struct {
	VenueID       string `json:"turf_id" validate:"required"`
	CustomerName  string `json:"customer_name" validate:"required"`
	CustomerPhone string `json:"customer_phone" validate:"required"`
	CustomerEmail string `json:"customer_email,omitempty" validate:"omitempty,email"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot      string `json:"time_slot" validate:"required"`
	Duration      int    `json:"duration,omitempty" validate:"min=1"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims whitespace and applies the one hour default duration.
func (r BookingRequest) Normalize() BookingRequest {
	r.VenueID = strings.TrimSpace(r.VenueID)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	r.Date = strings.TrimSpace(r.Date)
	r.TimeSlot = strings.TrimSpace(r.TimeSlot)
	if r.Duration == 0 {
		r.Duration = 1
	}
	return r
}

// Validate returns an ErrInvalidInput describing the first offending field.
func (r BookingRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Wrap(ErrInvalidInput, err.Error())
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return errors.Wrapf(ErrInvalidInput, "missing required field: %s", fe.Field())
	case "datetime":
		return errors.Wrapf(ErrInvalidInput, "%s must use the YYYY-MM-DD format", fe.Field())
	case "email":
		return errors.Wrapf(ErrInvalidInput, "%s is not a valid email address", fe.Field())
	case "min":
		return errors.Wrapf(ErrInvalidInput, "%s must be at least %s hour", fe.Field(), fe.Param())
	default:
		return errors.Wrapf(ErrInvalidInput, "%s is invalid", fe.Field())
	}
}

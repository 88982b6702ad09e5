package services

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"booking/internal/domain/entities"
)

type options struct {
	now func() time.Time
}

// Option customizes a service at construction.
type Option func(*options)

// WithClock replaces time.Now for every timestamp a service records. Tests
// use it to return books days late without waiting days.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// validate is safe for concurrent use and caches struct metadata, so one
// instance is shared by all services.
var validate = validator.New()

// validateStruct turns validation failures into ErrInvalidArgument.
func validateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Wrapf(entities.ErrInvalidArgument, "%s failed %q", fe.Namespace(), fe.Tag())
		}
		return errors.Wrap(entities.ErrInvalidArgument, err.Error())
	}
	return nil
}

package app

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type options struct {
	now        func() time.Time
	newCode    func() (string, error)
	log        *zap.Logger
	bcryptCost int
}

// Option customizes a service.
type Option func(*options)

// WithClock overrides the time source used for challenge expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCodeGenerator overrides the challenge code generator.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(o *options) { o.newCode = gen }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

func buildOptions(opts []Option) options {
	o := options{
		now:        time.Now,
		newCode:    GenerateCode,
		log:        zap.NewNop(),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

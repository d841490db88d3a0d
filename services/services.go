// Package services holds the credential core: issuing, validating and
// consuming tokens, and the client policy checks around them.
package services

import (
	"errors"
	"time"

	"go.pilab.hu/idcore/internal/audit"
	"go.pilab.hu/idcore/internal/metrics"
	"go.pilab.hu/idcore/log"
)

var (
	ErrInvalidClient      = errors.New("invalid client credentials")
	ErrInvalidGrant       = errors.New("invalid grant")
	ErrInvalidCallbackURL = errors.New("callback url not allowed")
	ErrAccessCodeRequired = errors.New("access code required")
)

// Options carries the ambient collaborators every service accepts. Zero
// values are replaced by no-op implementations.
type Options struct {
	Logger  log.Logger
	Metrics *metrics.Metrics
	Audit   *audit.Logger
	// Now is the clock; tests pin it.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

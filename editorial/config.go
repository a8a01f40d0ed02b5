package editorial

import (
	"time"

	"github.com/pkg/errors"
)

// Config is the engine's immutable configuration. It is validated once at
// construction and then only read; nothing in the engine mutates it.
type Config struct {
	// PrimaryLanguage is the newsroom's source language. TRANSLATE tasks
	// fan out only for stories written in it.
	PrimaryLanguage string `json:"primary_language" validate:"required"`
	// TargetLanguages lists translation targets. The primary language is
	// skipped if present.
	TargetLanguages []string `json:"target_languages"`

	// ReviewDue/ApprovalDue/FollowUpDue are due-date offsets for derived
	// tasks, relative to the moment the stage is entered.
	ReviewDue   time.Duration `json:"review_due"`
	ApprovalDue time.Duration `json:"approval_due"`
	FollowUpDue time.Duration `json:"follow_up_due"`

	// StoreRetryCount bounds retries of transient store failures before
	// ErrStoreUnavailable is surfaced; StoreRetryDelay is the base backoff.
	StoreRetryCount int           `json:"store_retry_count" validate:"gte=0,lte=5"`
	StoreRetryDelay time.Duration `json:"store_retry_delay"`

	// ReconnectThreshold is how many consecutive subscriber reconnect
	// failures flip the channel to unhealthy. PollInterval is the refresh
	// cadence consumers fall back to while unhealthy.
	ReconnectThreshold int           `json:"reconnect_threshold" validate:"gt=0"`
	PollInterval       time.Duration `json:"poll_interval"`
}

// DefaultConfig returns the engine defaults: 7-day follow-up window,
// 2-day review and approval windows, two store retries, unhealthy after 3
// failed reconnects, 30s polling fallback.
func DefaultConfig() *Config {
	return &Config{
		PrimaryLanguage:    "en",
		TargetLanguages:    []string{},
		ReviewDue:          48 * time.Hour,
		ApprovalDue:        48 * time.Hour,
		FollowUpDue:        7 * 24 * time.Hour,
		StoreRetryCount:    2,
		StoreRetryDelay:    100 * time.Millisecond,
		ReconnectThreshold: 3,
		PollInterval:       30 * time.Second,
	}
}

func (c *Config) validate() error {
	if c == nil {
		return errors.Wrap(ErrParamInvalid, "nil Config")
	}
	if err := validatorUtil.Struct(c); err != nil {
		return errors.Wrapf(ErrParamInvalid, "Config validate failed, err: %v", err)
	}
	if c.FollowUpDue <= 0 {
		return errors.Wrap(ErrParamInvalid, "FollowUpDue must be positive")
	}
	return nil
}

package client

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/ratelimit"
)

const (
	DefaultBaseURL      = "https://api.infogen.dev"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = time.Second
	DefaultPollInterval = 2 * time.Second

	MaxTimeout      = 5 * time.Minute
	MinPollInterval = 100 * time.Millisecond
)

// RetryOptions governs client-side re-submission of failed generations.
type RetryOptions struct {
	MaxRetries         int
	RetryDelay         time.Duration
	ExponentialBackoff bool
}

// Options is the full client configuration. Construct via DefaultOptions
// and apply overrides with With; Validate runs once at client construction
// and never again.
type Options struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	Retry        RetryOptions
	PollInterval time.Duration
	WebhookURL   string
	Headers      map[string]string
	RateLimit    ratelimit.Config
}

// OptionsUpdate is a partial override: nil fields keep the base value.
// Headers merge key by key rather than wholesale.
type OptionsUpdate struct {
	APIKey       *string
	BaseURL      *string
	Timeout      *time.Duration
	Retry        *RetryOptionsUpdate
	PollInterval *time.Duration
	WebhookURL   *string
	Headers      map[string]string
	RateLimit    *ratelimit.ConfigUpdate
}

type RetryOptionsUpdate struct {
	MaxRetries         *int
	RetryDelay         *time.Duration
	ExponentialBackoff *bool
}

func DefaultOptions(apiKey string) Options {
	return Options{
		APIKey:  strings.TrimSpace(apiKey),
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
		Retry: RetryOptions{
			MaxRetries: DefaultMaxRetries,
			RetryDelay: DefaultRetryDelay,
		},
		PollInterval: DefaultPollInterval,
	}
}

// With merges the update over o field by field and returns the result.
// The receiver is not modified.
func (o Options) With(update OptionsUpdate) Options {
	merged := o

	if update.APIKey != nil {
		merged.APIKey = strings.TrimSpace(*update.APIKey)
	}
	if update.BaseURL != nil {
		merged.BaseURL = strings.TrimSpace(*update.BaseURL)
	}
	if update.Timeout != nil {
		merged.Timeout = *update.Timeout
	}
	if update.PollInterval != nil {
		merged.PollInterval = *update.PollInterval
	}
	if update.WebhookURL != nil {
		merged.WebhookURL = strings.TrimSpace(*update.WebhookURL)
	}

	if update.Retry != nil {
		if update.Retry.MaxRetries != nil {
			merged.Retry.MaxRetries = *update.Retry.MaxRetries
		}
		if update.Retry.RetryDelay != nil {
			merged.Retry.RetryDelay = *update.Retry.RetryDelay
		}
		if update.Retry.ExponentialBackoff != nil {
			merged.Retry.ExponentialBackoff = *update.Retry.ExponentialBackoff
		}
	}

	if len(update.Headers) > 0 {
		headers := make(map[string]string, len(o.Headers)+len(update.Headers))
		for k, v := range o.Headers {
			headers[k] = v
		}
		for k, v := range update.Headers {
			headers[k] = v
		}
		merged.Headers = headers
	}

	if update.RateLimit != nil {
		if update.RateLimit.MaxRequests != nil {
			merged.RateLimit.MaxRequests = *update.RateLimit.MaxRequests
		}
		if update.RateLimit.Window != nil {
			merged.RateLimit.Window = *update.RateLimit.Window
		}
		if update.RateLimit.Cooldown != nil {
			merged.RateLimit.Cooldown = *update.RateLimit.Cooldown
		}
	}

	return merged
}

// Validate checks every field up front. A zero value in an optional field
// means "use the default", so only supplied values are range-checked.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.APIKey) == "" {
		return fmt.Errorf("%w: apiKey is required", domain.ErrValidation)
	}

	if o.BaseURL != "" {
		if !strings.HasPrefix(o.BaseURL, "http://") && !strings.HasPrefix(o.BaseURL, "https://") {
			return fmt.Errorf("%w: baseUrl must start with http:// or https://", domain.ErrValidation)
		}
		if _, err := url.ParseRequestURI(o.BaseURL); err != nil {
			return fmt.Errorf("%w: baseUrl is not a valid URL", domain.ErrValidation)
		}
	}

	if o.Timeout < 0 || o.Timeout > MaxTimeout {
		return fmt.Errorf("%w: timeout must be between 0 and %s", domain.ErrValidation, MaxTimeout)
	}

	if o.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: maxRetries must be >= 0", domain.ErrValidation)
	}
	if o.Retry.RetryDelay < 0 {
		return fmt.Errorf("%w: retryDelay must be >= 0", domain.ErrValidation)
	}

	if o.PollInterval != 0 && o.PollInterval < MinPollInterval {
		return fmt.Errorf("%w: pollInterval must be >= %s", domain.ErrValidation, MinPollInterval)
	}

	if trimmed := strings.TrimSpace(o.WebhookURL); trimmed != "" {
		u, err := url.ParseRequestURI(trimmed)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: webhook URL must be a valid http(s) URL", domain.ErrValidation)
		}
	}

	for key := range o.Headers {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: header names must be non-empty", domain.ErrValidation)
		}
	}

	if o.RateLimit.MaxRequests < 0 || o.RateLimit.Window < 0 || o.RateLimit.Cooldown < 0 {
		return fmt.Errorf("%w: rate limit values must be >= 0", domain.ErrValidation)
	}

	return nil
}

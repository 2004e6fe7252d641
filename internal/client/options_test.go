package client

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/ratelimit"
)

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	valid := DefaultOptions("key-123")
	if err := valid.Validate(); err != nil {
		t.Fatalf("default options must validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing api key", func(o *Options) { o.APIKey = "  " }},
		{"bad base url scheme", func(o *Options) { o.BaseURL = "ftp://api.example.com" }},
		{"base url without scheme", func(o *Options) { o.BaseURL = "api.example.com" }},
		{"negative timeout", func(o *Options) { o.Timeout = -time.Second }},
		{"timeout over maximum", func(o *Options) { o.Timeout = MaxTimeout + time.Second }},
		{"negative max retries", func(o *Options) { o.Retry.MaxRetries = -1 }},
		{"negative retry delay", func(o *Options) { o.Retry.RetryDelay = -time.Second }},
		{"poll interval too small", func(o *Options) { o.PollInterval = 50 * time.Millisecond }},
		{"bad webhook url", func(o *Options) { o.WebhookURL = "not a url" }},
		{"blank header name", func(o *Options) { o.Headers = map[string]string{" ": "v"} }},
		{"negative rate limit", func(o *Options) { o.RateLimit.MaxRequests = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			opts := DefaultOptions("key-123")
			tc.mutate(&opts)
			if err := opts.Validate(); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestOptions_ValidateZeroOptionalFields(t *testing.T) {
	t.Parallel()

	// Zero means "default", not "invalid".
	opts := Options{APIKey: "key-123"}
	if err := opts.Validate(); err != nil {
		t.Fatalf("zero optional fields must validate: %v", err)
	}
}

func TestOptions_WithMergesFieldByField(t *testing.T) {
	t.Parallel()

	base := DefaultOptions("key-123")
	base.Headers = map[string]string{"X-Team": "infra", "X-Env": "staging"}

	timeout := 10 * time.Second
	retries := 7
	backoff := true
	maxRequests := 3

	merged := base.With(OptionsUpdate{
		Timeout: &timeout,
		Retry: &RetryOptionsUpdate{
			MaxRetries:         &retries,
			ExponentialBackoff: &backoff,
		},
		Headers:   map[string]string{"X-Env": "prod", "X-Trace": "on"},
		RateLimit: &ratelimit.ConfigUpdate{MaxRequests: &maxRequests},
	})

	if merged.Timeout != timeout {
		t.Fatalf("expected timeout override, got %s", merged.Timeout)
	}
	if merged.APIKey != "key-123" || merged.BaseURL != DefaultBaseURL {
		t.Fatal("untouched fields must keep the base value")
	}
	if merged.Retry.MaxRetries != 7 || !merged.Retry.ExponentialBackoff {
		t.Fatalf("nested retry merge failed: %+v", merged.Retry)
	}
	if merged.Retry.RetryDelay != DefaultRetryDelay {
		t.Fatal("unsupplied nested field must keep the base value")
	}

	wantHeaders := map[string]string{"X-Team": "infra", "X-Env": "prod", "X-Trace": "on"}
	if len(merged.Headers) != len(wantHeaders) {
		t.Fatalf("expected %d headers, got %d", len(wantHeaders), len(merged.Headers))
	}
	for k, v := range wantHeaders {
		if merged.Headers[k] != v {
			t.Fatalf("header %s: expected %q, got %q", k, v, merged.Headers[k])
		}
	}

	if merged.RateLimit.MaxRequests != 3 {
		t.Fatalf("rate limit merge failed: %+v", merged.RateLimit)
	}

	// The base must not have been mutated.
	if base.Timeout != DefaultTimeout || base.Headers["X-Env"] != "staging" {
		t.Fatal("With must not mutate the receiver")
	}
}

func TestOptions_WithNoUpdatesIsIdentity(t *testing.T) {
	t.Parallel()

	base := DefaultOptions("key-123")
	merged := base.With(OptionsUpdate{})
	if !reflect.DeepEqual(merged, base) {
		t.Fatalf("empty update must be the identity: %+v vs %+v", merged, base)
	}
}

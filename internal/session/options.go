package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/koneko/internal/config"
	"github.com/Mohsinsiddi/koneko/internal/contract"
	"github.com/Mohsinsiddi/koneko/internal/ledger"
)

// Recorder stores minted tokens. *ledger.Ledger satisfies it.
type Recorder interface {
	Record(ctx context.Context, entries ...ledger.Entry) error
}

type options struct {
	log              zerolog.Logger
	requireSignature bool
	callTimeout      time.Duration
	promptTimeout    time.Duration
	appName          string

	recorder    Recorder
	meta        contract.MetadataSource
	gatewayOpts []contract.GatewayOption
}

func defaultOptions() options {
	return options{
		log:              zerolog.Nop(),
		requireSignature: true,
		callTimeout:      config.ProviderCallTimeout,
		promptTimeout:    config.PromptTimeout,
		appName:          "Koneko",
	}
}

// Option configures a session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLoginSignature controls whether Connect asks the wallet to sign a
// login message. On by default.
func WithLoginSignature(required bool) Option {
	return func(o *options) { o.requireSignature = required }
}

// WithTimeouts overrides the RPC read and user prompt timeouts. Zero values
// keep the defaults.
func WithTimeouts(call, prompt time.Duration) Option {
	return func(o *options) {
		if call > 0 {
			o.callTimeout = call
		}
		if prompt > 0 {
			o.promptTimeout = prompt
		}
	}
}

// WithRecorder records successful mints.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithCatalog labels owned and minted tokens from m.
func WithCatalog(m contract.MetadataSource) Option {
	return func(o *options) { o.meta = m }
}

// WithGatewayOptions passes options to the gateway built on Initialize.
func WithGatewayOptions(opts ...contract.GatewayOption) Option {
	return func(o *options) { o.gatewayOpts = append(o.gatewayOpts, opts...) }
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

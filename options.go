package revwatch

import (
	"time"

	"github.com/mrazakos/revwatch/internal/chain"
	"github.com/mrazakos/revwatch/internal/types"
	"github.com/mrazakos/revwatch/internal/verify"
)

// Version is set at build time via -ldflags
var Version = "dev"

// Logger is the logging interface accepted throughout revwatch
type Logger = types.Logger

type options struct {
	logger     Logger
	reader     chain.Reader
	verifyFunc verify.VerifyFunc
	clock      func() time.Time
}

func defaultOptions() *options {
	return &options{
		logger: types.StdLogger{},
	}
}

// Option configures the Service
type Option func(*options)

// WithLogger sets a custom logger
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithChainReader injects a chain reader instead of dialing the configured
// RPC endpoint (tests, custom transports)
func WithChainReader(reader chain.Reader) Option {
	return func(o *options) {
		o.reader = reader
	}
}

// WithVerifyFunc sets the cryptographic signature check used by the
// verification workflow
func WithVerifyFunc(fn verify.VerifyFunc) Option {
	return func(o *options) {
		o.verifyFunc = fn
	}
}

// WithClock overrides the time source used for fact timestamps (tests)
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

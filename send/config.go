package send

import (
	"math"

	"github.com/pkg/errors"
)

// Defaults mirror a conservative streaming configuration suitable for
// gigabit-class links.
const (
	DefaultMaxPacketSize  = 1472
	DefaultBurstSize      = 65536
	DefaultMaxHeaps       = 4
	DefaultBurstRateRatio = 1.05
	DefaultAddressBits    = 40
)

// ConfigError is returned synchronously from NewConfig and
// Stream.SetCntSequence, distinct from the per-heap errors delivered
// via completion callbacks.
type ConfigError struct {
	Field string
	Value any
	cause error
}

func (e *ConfigError) Error() string {
	return errors.Wrapf(e.cause, "send: invalid %s=%v", e.Field, e.Value).Error()
}

func (e *ConfigError) Unwrap() error { return e.cause }

func cfgErr(field string, value any, cause error) error {
	return &ConfigError{Field: field, Value: value, cause: cause}
}

var (
	errNegativeOrInfinite = errors.New("must be non-negative and finite")
	errNotPositive        = errors.New("must be positive")
	errBelowOne           = errors.New("must be >= 1.0 and finite")
	errTooSmall           = errors.New("below protocol minimum")
)

// Config is a value record of validated stream options. Use NewConfig to
// build one; each With* option rejects invalid values immediately rather
// than deferring the failure to first use.
type Config struct {
	maxPacketSize  int
	rate           float64
	burstSize      int
	maxHeaps       int
	burstRateRatio float64
	addressBits    int
}

// NewConfig returns a Config populated with defaults, then applies opts
// in order. It returns the first validation error encountered.
func NewConfig(opts ...func(*Config) error) (*Config, error) {
	c := &Config{
		maxPacketSize:  DefaultMaxPacketSize,
		burstSize:      DefaultBurstSize,
		maxHeaps:       DefaultMaxHeaps,
		burstRateRatio: DefaultBurstRateRatio,
		addressBits:    DefaultAddressBits,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func WithMaxPacketSize(n int) func(*Config) error {
	return func(c *Config) error {
		// Config doesn't know yet whether every heap sent on this
		// stream will be empty, so it enforces the stricter floor a
		// non-empty heap needs to make forward progress (see
		// minUsefulPacketSize in generator.go); an empty-heap-only
		// stream could tolerate less, but NewGenerator would reject
		// that per-call if a non-empty heap ever showed up anyway.
		if n < minUsefulPacketSize {
			return cfgErr("max_packet_size", n, errTooSmall)
		}
		c.maxPacketSize = n
		return nil
	}
}

func WithRate(rate float64) func(*Config) error {
	return func(c *Config) error {
		if rate < 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
			return cfgErr("rate", rate, errNegativeOrInfinite)
		}
		c.rate = rate
		return nil
	}
}

func WithBurstSize(n int) func(*Config) error {
	return func(c *Config) error {
		c.burstSize = n
		return nil
	}
}

func WithMaxHeaps(n int) func(*Config) error {
	return func(c *Config) error {
		if n <= 0 {
			return cfgErr("max_heaps", n, errNotPositive)
		}
		c.maxHeaps = n
		return nil
	}
}

func WithBurstRateRatio(ratio float64) func(*Config) error {
	return func(c *Config) error {
		if ratio < 1.0 || math.IsInf(ratio, 0) || math.IsNaN(ratio) {
			return cfgErr("burst_rate_ratio", ratio, errBelowOne)
		}
		c.burstRateRatio = ratio
		return nil
	}
}

func WithAddressBits(bits int) func(*Config) error {
	return func(c *Config) error {
		if bits <= 0 || bits >= 64 || bits%8 != 0 {
			return cfgErr("address_bits", bits, errors.New("must be a positive multiple of 8 below 64"))
		}
		c.addressBits = bits
		return nil
	}
}

func (c *Config) MaxPacketSize() int      { return c.maxPacketSize }
func (c *Config) Rate() float64           { return c.rate }
func (c *Config) BurstSize() int          { return c.burstSize }
func (c *Config) MaxHeaps() int           { return c.maxHeaps }
func (c *Config) BurstRateRatio() float64 { return c.burstRateRatio }
func (c *Config) AddressBits() int        { return c.addressBits }

// BurstRate is rate * burst_rate_ratio.
func (c *Config) BurstRate() float64 { return c.rate * c.burstRateRatio }

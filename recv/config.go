package recv

// BugCompat is a bitmask of parsing quirks needed to interoperate with
// historical senders that did not follow the current wire format
// exactly. These toggles affect only descriptor field decoding; they
// never change reassembly.
type BugCompat uint32

const (
	// BugCompatDescriptorWidths: use legacy field widths (4 bytes for
	// the format pointer, 8 bytes for the shape pointer) instead of the
	// address-size-dependent widths a current sender emits.
	BugCompatDescriptorWidths BugCompat = 1 << iota
	// BugCompatShapeBit1: the shape "variable" flag lives in mask bit 1
	// instead of bit 0.
	BugCompatShapeBit1
	// BugCompatPySPEAD052: misc PySPEAD 0.5.2 compatibility quirks,
	// reserved for a consumer-supplied descriptor interpreter; the
	// parsing/reassembly path here does not branch on it itself.
	BugCompatPySPEAD052
)

// Config is the validated set of options for a receive Stream.
type Config struct {
	maxHeaps      int
	bugCompat     BugCompat
	maxPacketSize int
}

const (
	DefaultRecvMaxHeaps      = 4
	DefaultRecvMaxPacketSize = 9200 // jumbo-frame-friendly default
)

// NewConfig returns a Config with defaults, then applies opts in order.
func NewConfig(opts ...func(*Config) error) (*Config, error) {
	c := &Config{
		maxHeaps:      DefaultRecvMaxHeaps,
		maxPacketSize: DefaultRecvMaxPacketSize,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func WithMaxHeaps(n int) func(*Config) error {
	return func(c *Config) error {
		if n <= 0 {
			return cfgErr("max_heaps", n)
		}
		c.maxHeaps = n
		return nil
	}
}

func WithBugCompat(flags BugCompat) func(*Config) error {
	return func(c *Config) error {
		c.bugCompat = flags
		return nil
	}
}

func WithMaxPacketSize(n int) func(*Config) error {
	return func(c *Config) error {
		if n <= 0 {
			return cfgErr("max_packet_size", n)
		}
		c.maxPacketSize = n
		return nil
	}
}

func (c *Config) MaxHeaps() int           { return c.maxHeaps }
func (c *Config) BugCompat() BugCompat    { return c.bugCompat }
func (c *Config) MaxPacketSize() int      { return c.maxPacketSize }
func (c *Config) Has(flag BugCompat) bool { return c.bugCompat&flag != 0 }

package backingstore

import (
	"fmt"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/mem/storage"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/sim/timing"
)

// A Builder can build backing stores.
type Builder struct {
	engine     timing.Engine
	params     burstbus.Params
	latency    int
	capacity   uint64
	randomInit bool
	seed       int64
	topBufSize int
	storage    *storage.Storage
}

// MakeBuilder returns a Builder with a 24-bit, 32-bit wide bus, a latency of
// 4 cycles, and zero-initialized contents.
func MakeBuilder() Builder {
	return Builder{
		params: burstbus.Params{
			AddressWidth:     24,
			DataWidth:        32,
			GranularityBytes: 1,
			BurstLen:         8,
		},
		latency:    4,
		topBufSize: 1,
	}
}

// WithEngine sets the engine that ticks the backing store.
func (b Builder) WithEngine(engine timing.Engine) Builder {
	b.engine = engine
	return b
}

// WithBusParams sets the shape of the bus the store serves.
func (b Builder) WithBusParams(p burstbus.Params) Builder {
	b.params = p
	return b
}

// WithLatency sets the number of cycles spent on every beat before it is
// acknowledged.
func (b Builder) WithLatency(latency int) Builder {
	b.latency = latency
	return b
}

// WithCapacity sets the number of words. By default the whole address space
// is backed.
func (b Builder) WithCapacity(words uint64) Builder {
	b.capacity = words
	return b
}

// WithRandomInit fills the store with pseudo-random data derived from the
// seed instead of zeros.
func (b Builder) WithRandomInit(seed int64) Builder {
	b.randomInit = true
	b.seed = seed

	return b
}

// WithStorage uses an existing storage.
func (b Builder) WithStorage(s *storage.Storage) Builder {
	b.storage = s
	return b
}

// Build creates a backing store and registers it with the engine.
func (b Builder) Build(name string) (*Comp, error) {
	if err := b.params.Validate(); err != nil {
		return nil, fmt.Errorf("backing store %s: %w", name, err)
	}

	if b.latency < 0 {
		return nil, fmt.Errorf("backing store %s: negative latency %d",
			name, b.latency)
	}

	c := &Comp{
		ComponentBase: modeling.NewComponentBase(name),
		params:        b.params,
		latency:       b.latency,
		storage:       b.storage,
	}

	if c.storage == nil {
		capacity := b.capacity
		if capacity == 0 {
			capacity = b.params.AddressMask()
			if capacity < ^uint64(0) {
				capacity++
			}
		}

		if b.randomInit {
			c.storage = storage.NewRandom(capacity, b.params.DataWidth, b.seed)
		} else {
			c.storage = storage.New(capacity, b.params.DataWidth)
		}
	}

	c.topPort = burstbus.NewPort(name+".TopPort", b.topBufSize)

	if b.engine != nil {
		b.engine.RegisterTicker(c)
	}

	return c, nil
}

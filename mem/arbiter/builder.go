package arbiter

import (
	"errors"
	"fmt"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/sim/naming"
	"github.com/sarchlab/delaymem/sim/timing"
)

// MaxRequesters is the largest number of masters an arbiter can serve.
const MaxRequesters = 64

// ErrInvalidNumRequesters is returned when the number of requesters is out of
// range.
var ErrInvalidNumRequesters = errors.New("invalid number of requesters")

// A Builder can build arbiters.
type Builder struct {
	engine        timing.Engine
	numRequesters int
	bufferSize    int
}

// MakeBuilder returns a Builder for a two-requester arbiter.
func MakeBuilder() Builder {
	return Builder{
		numRequesters: 2,
		bufferSize:    1,
	}
}

// WithEngine sets the engine that ticks the arbiter.
func (b Builder) WithEngine(engine timing.Engine) Builder {
	b.engine = engine
	return b
}

// WithNumRequesters sets the number of masters.
func (b Builder) WithNumRequesters(n int) Builder {
	b.numRequesters = n
	return b
}

// WithBufferSize sets the incoming buffer size of every port.
func (b Builder) WithBufferSize(n int) Builder {
	b.bufferSize = n
	return b
}

// Build creates an arbiter and registers it with the engine.
func (b Builder) Build(name string) (*Comp, error) {
	if b.numRequesters < 1 || b.numRequesters > MaxRequesters {
		return nil, fmt.Errorf("arbiter %s: %w: %d not in [1, %d]",
			name, ErrInvalidNumRequesters, b.numRequesters, MaxRequesters)
	}

	c := &Comp{
		ComponentBase: modeling.NewComponentBase(name),
		holder:        -1,
		lastHolder:    b.numRequesters - 1,
		grants:        make([]uint64, b.numRequesters),
	}

	for i := 0; i < b.numRequesters; i++ {
		c.ups = append(c.ups, burstbus.NewPort(
			naming.BuildNameWithIndex(name, "Up", i), b.bufferSize))
	}

	c.down = burstbus.NewPort(naming.BuildName(name, "Down"), b.bufferSize)

	if b.engine != nil {
		b.engine.RegisterTicker(c)
	}

	return c, nil
}

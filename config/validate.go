package config

import (
	"errors"
	"fmt"

	"github.com/sarchlab/delaymem/mem/burstbus"
)

// BusParams returns the shape of the memory bus.
func (m MemoryConfig) BusParams() burstbus.Params {
	return burstbus.Params{
		AddressWidth:     m.AddressWidth,
		DataWidth:        m.DataWidth,
		GranularityBytes: 1,
		BurstLen:         m.BurstLen,
	}
}

// PSRAM tells if the line stores its samples in the backing store.
func (d DelayLineConfig) PSRAM() bool {
	return d.Storage == StoragePSRAM
}

// Footprint returns the number of backing store words a PSRAM line occupies.
func (d DelayLineConfig) Footprint(memWidth int) uint64 {
	if d.SampleWidth <= 0 || memWidth < d.SampleWidth {
		return d.Length
	}

	return d.Length / uint64(memWidth/d.SampleWidth)
}

// Validate reports every problem of the description at once.
func (c *Config) Validate() error {
	var errs []error

	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format,
			append([]any{ErrInvalidConfig}, args...)...))
	}

	if err := c.Memory.BusParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: memory: %w", ErrInvalidConfig, err))
	}

	if c.Memory.Latency < 0 {
		fail("memory: negative latency %d", c.Memory.Latency)
	}

	if len(c.DelayLines) == 0 {
		fail("no delay lines")
	}

	names := make(map[string]bool)
	for i, d := range c.DelayLines {
		if d.Name == "" {
			fail("delay line %d has no name", i)
		} else if names[d.Name] {
			fail("delay line name %s is used twice", d.Name)
		}

		names[d.Name] = true

		for _, msg := range c.checkDelayLine(d) {
			fail("delay line %s: %s", d.Name, msg)
		}
	}

	for _, msg := range c.checkOverlaps() {
		fail("%s", msg)
	}

	return errors.Join(errs...)
}

func (c *Config) checkDelayLine(d DelayLineConfig) []string {
	var msgs []string

	if d.Length < 2 || d.Length&(d.Length-1) != 0 {
		msgs = append(msgs,
			fmt.Sprintf("length %d is not a power of two", d.Length))
	}

	if d.SampleWidth < 8 || d.SampleWidth > 64 || d.SampleWidth%8 != 0 {
		msgs = append(msgs,
			fmt.Sprintf("sample width %d is not a whole number of bytes",
				d.SampleWidth))
	}

	for i, t := range d.Taps {
		if !t.Dynamic && t.Delay >= d.Length {
			msgs = append(msgs, fmt.Sprintf(
				"tap %d delay %d does not fit length %d", i, t.Delay, d.Length))
		}

		if t.Dynamic && d.WriteTriggersTaps {
			msgs = append(msgs, fmt.Sprintf(
				"tap %d is dynamic but writes trigger taps", i))
		}
	}

	switch d.Storage {
	case StorageLocal:
	case StoragePSRAM:
		msgs = append(msgs, c.checkPSRAM(d)...)
	default:
		msgs = append(msgs, fmt.Sprintf("unknown storage %q", d.Storage))
	}

	return msgs
}

func (c *Config) checkPSRAM(d DelayLineConfig) []string {
	var msgs []string

	if d.CacheLines <= 0 || d.CacheLines&(d.CacheLines-1) != 0 {
		msgs = append(msgs, fmt.Sprintf(
			"cache lines %d is not a power of two", d.CacheLines))
	}

	memWidth := c.Memory.DataWidth
	if d.SampleWidth > 0 && memWidth%d.SampleWidth != 0 {
		msgs = append(msgs, fmt.Sprintf(
			"memory width %d is not a multiple of sample width %d",
			memWidth, d.SampleWidth))

		return msgs
	}

	if ratio := memWidth / max(d.SampleWidth, 1); ratio&(ratio-1) != 0 {
		msgs = append(msgs, fmt.Sprintf(
			"memory width %d holds %d samples, not a power of two",
			memWidth, ratio))
	}

	if c.Memory.AddressWidth >= 1 && c.Memory.AddressWidth < 64 {
		limit := uint64(1) << c.Memory.AddressWidth
		if d.BaseAddress+d.Footprint(memWidth) > limit {
			msgs = append(msgs, fmt.Sprintf(
				"region at %#x does not fit the %d-bit address space",
				d.BaseAddress, c.Memory.AddressWidth))
		}
	}

	return msgs
}

func (c *Config) checkOverlaps() []string {
	var msgs []string

	for i, a := range c.DelayLines {
		if !a.PSRAM() {
			continue
		}

		for _, b := range c.DelayLines[i+1:] {
			if !b.PSRAM() {
				continue
			}

			aEnd := a.BaseAddress + a.Footprint(c.Memory.DataWidth)
			bEnd := b.BaseAddress + b.Footprint(c.Memory.DataWidth)

			if a.BaseAddress < bEnd && b.BaseAddress < aEnd {
				msgs = append(msgs, fmt.Sprintf(
					"delay lines %s and %s overlap in memory", a.Name, b.Name))
			}
		}
	}

	return msgs
}

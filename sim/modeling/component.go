// Package modeling provides the pieces shared by every simulated component.
package modeling

import (
	"github.com/sarchlab/delaymem/sim/hooking"
	"github.com/sarchlab/delaymem/sim/naming"
	"github.com/sarchlab/delaymem/sim/timing"
)

// A Component is an element that is being simulated. It is ticked by the
// clock and can be observed with hooks.
type Component interface {
	naming.Named
	hooking.Hookable
	timing.Ticker
}

// ComponentBase provides the name and hook support for components.
type ComponentBase struct {
	hooking.HookableBase

	name string
}

// NewComponentBase creates a new ComponentBase
func NewComponentBase(name string) *ComponentBase {
	naming.NameMustBeValid(name)

	c := new(ComponentBase)
	c.name = name

	return c
}

// Name returns the name of the component.
func (c *ComponentBase) Name() string {
	return c.name
}

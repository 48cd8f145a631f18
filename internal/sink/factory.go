// ABOUTME: Zone sink construction
// ABOUTME: Builds the primary and secondary sinks handed to a pipeline
package sink

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/output"
)

// Zone pairs a sink config with the output it renders into
type Zone struct {
	Config Config
	Output output.Output
}

// Zones holds the soft sinks of a pipeline, indexed by role
type Zones struct {
	sinks [len(Roles)]*SoftSink
}

// NewZones builds a soft sink per zone; secondary may be nil
func NewZones(primary Zone, secondary *Zone, clock Clock) (*Zones, error) {
	if primary.Output == nil {
		return nil, fmt.Errorf("primary zone %q has no output", primary.Config.Name)
	}

	z := &Zones{}
	z.sinks[Primary] = NewSoftSink(primary.Config, primary.Output, clock)
	if secondary != nil {
		if secondary.Output == nil {
			return nil, fmt.Errorf("secondary zone %q has no output", secondary.Config.Name)
		}
		z.sinks[Secondary] = NewSoftSink(secondary.Config, secondary.Output, clock)
	}
	return z, nil
}

// Factory returns the sink lookup for a pipeline. A missing secondary zone
// yields a sink that is permanently disabled.
func (z *Zones) Factory() Factory {
	return func(role Role) Sink {
		if s := z.sinks[role]; s != nil {
			return s
		}
		cfg := DefaultConfig(role.String())
		cfg.Disabled = true
		s := NewSoftSink(cfg, output.NewNull(0), nil)
		z.sinks[role] = s
		return s
	}
}

// Get returns the soft sink for role, nil if none was configured
func (z *Zones) Get(role Role) *SoftSink {
	return z.sinks[role]
}

// HasSecondary reports whether a second zone was configured
func (z *Zones) HasSecondary() bool {
	return z.sinks[Secondary] != nil
}

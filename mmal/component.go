package mmal

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultDrainTimeout bounds how long disabling a port waits for its buffers.
const DefaultDrainTimeout = 2 * time.Second

// Driver is the hardware or software stage behind a Component. Drivers return
// buffers by calling (*Port).Complete from their own goroutine.
type Driver interface {
	// Ports declares the inputs and outputs of the component.
	Ports() []PortSpec
	// CheckFormat validates f for p and returns the buffer requirements it
	// implies. It must not change driver state.
	CheckFormat(p *Port, f Format) (Requirements, error)
	// Configure validates and applies component specific parameters.
	Configure(params interface{}) error
	Enable(p *Port) error
	Submit(p *Port, b *Buffer) error
	// Flush asks the driver to return every buffer it holds for p.
	Flush(p *Port)
	Disable(p *Port)
	Close() error
}

// Capturer is implemented by drivers that can produce a still on demand.
type Capturer interface {
	Capture(p *Port) error
}

type ComponentState int

const (
	ComponentCreated ComponentState = iota
	ComponentReady
	ComponentDestroyed
)

func (s ComponentState) String() string {
	switch s {
	case ComponentCreated:
		return "created"
	case ComponentReady:
		return "ready"
	case ComponentDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("ComponentState(%d)", int(s))
}

// PortFormat pairs a port with the format to apply to it.
type PortFormat struct {
	Port   *Port
	Format Format
}

// Component is a processing stage owning its ports. It is created, configured
// and destroyed from a single control goroutine.
type Component struct {
	// DrainTimeout bounds Port.Disable. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration

	name    string
	driver  Driver
	inputs  []*Port
	outputs []*Port
	state   ComponentState
	params  interface{}
}

func NewComponent(name string, d Driver) (*Component, error) {
	if d == nil {
		return nil, errors.Errorf("component %s: no driver", name)
	}
	c := &Component{
		name:   name,
		driver: d,
	}
	for _, spec := range d.Ports() {
		switch spec.Direction {
		case Input:
			c.inputs = append(c.inputs, newPort(c, len(c.inputs), spec))
		case Output:
			c.outputs = append(c.outputs, newPort(c, len(c.outputs), spec))
		default:
			return nil, errors.Errorf("component %s: bad port direction %d", name, spec.Direction)
		}
	}
	log.WithField("component", name).Debugf("Created with %d inputs, %d outputs", len(c.inputs), len(c.outputs))
	return c, nil
}

func (c *Component) Name() string {
	return c.name
}

func (c *Component) String() string {
	return c.name
}

func (c *Component) State() ComponentState {
	return c.state
}

func (c *Component) Driver() Driver {
	return c.driver
}

// Input returns input port i, or nil.
func (c *Component) Input(i int) *Port {
	if i < 0 || i >= len(c.inputs) {
		return nil
	}
	return c.inputs[i]
}

// Output returns output port i, or nil.
func (c *Component) Output(i int) *Port {
	if i < 0 || i >= len(c.outputs) {
		return nil
	}
	return c.outputs[i]
}

func (c *Component) Ports() []*Port {
	ports := make([]*Port, 0, len(c.inputs)+len(c.outputs))
	ports = append(ports, c.inputs...)
	return append(ports, c.outputs...)
}

// Parameters returns the last parameters applied by Configure.
func (c *Component) Parameters() interface{} {
	return c.params
}

func (c *Component) drainTimeout() time.Duration {
	if c.DrainTimeout > 0 {
		return c.DrainTimeout
	}
	return DefaultDrainTimeout
}

// Configure applies port formats and component parameters. Everything is
// validated before anything is applied, so a rejected configuration leaves the
// component as it was. Formats can only change on disabled ports; params alone
// may be updated while ports are running. nil params are left untouched.
func (c *Component) Configure(formats []PortFormat, params interface{}) error {
	if c.state == ComponentDestroyed {
		return protocolError(errors.Wrapf(ErrPortState, "configure %s: destroyed", c.name), log.Fields{"component": c.name})
	}
	reqs := make([]Requirements, len(formats))
	for i, pf := range formats {
		if pf.Port == nil || pf.Port.component != c {
			return errors.Wrapf(ErrUnsupportedFormat, "configure %s: port not owned by component", c.name)
		}
		if pf.Port.Enabled() {
			return protocolError(errors.Wrapf(ErrPortState, "configure %s: %s is enabled", c.name, pf.Port), pf.Port.fields())
		}
		req, err := c.driver.CheckFormat(pf.Port, pf.Format)
		if err != nil {
			return errors.Wrapf(err, "configure %s: %v", pf.Port, pf.Format)
		}
		reqs[i] = req
	}
	if params != nil {
		if err := c.driver.Configure(params); err != nil {
			return errors.Wrapf(err, "configure %s", c.name)
		}
		c.params = params
	}
	for i, pf := range formats {
		pf.Port.setFormat(pf.Format, reqs[i])
		log.WithFields(pf.Port.fields()).Debugf("Format set to %v", pf.Format)
	}
	c.state = ComponentReady
	return nil
}

// Destroy releases the driver. All ports must be disabled, disconnected and
// without a pool. Destroying twice is a no-op.
func (c *Component) Destroy() error {
	if c.state == ComponentDestroyed {
		return nil
	}
	for _, p := range c.Ports() {
		p.mu.Lock()
		enabled, conn, pool := p.enabled, p.conn, p.pool
		p.mu.Unlock()
		switch {
		case enabled:
			return protocolError(errors.Wrapf(ErrPortState, "destroy %s: %s is enabled", c.name, p), p.fields())
		case conn != nil:
			return protocolError(errors.Wrapf(ErrActiveConnection, "destroy %s: %s is connected", c.name, p), p.fields())
		case pool != nil:
			return errors.Wrapf(ErrPoolInUse, "destroy %s: %s still owns pool", c.name, p)
		}
	}
	err := c.driver.Close()
	c.state = ComponentDestroyed
	log.WithField("component", c.name).Debugf("Destroyed")
	if err != nil {
		return errors.Wrapf(err, "destroy %s", c.name)
	}
	return nil
}

// Abandon closes the driver of a component that Destroy refused, typically
// after a drain timeout. Buffers still held by its ports are lost.
func (c *Component) Abandon() error {
	if c.state == ComponentDestroyed {
		return nil
	}
	lost := 0
	for _, p := range c.Ports() {
		lost += p.InFlight()
	}
	log.WithField("component", c.name).Warnf("Abandoning component, %d buffers never returned", lost)
	err := c.driver.Close()
	c.state = ComponentDestroyed
	if err != nil {
		return errors.Wrapf(err, "abandon %s", c.name)
	}
	return nil
}

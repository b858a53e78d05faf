// Package robot defines the actuator-facing side of go-follow: the command
// vector and the publishers that deliver it to the base.
//
// Interfaces are kept small so the control loop depends only on what it uses.
package robot

// Publisher delivers a command to the actuator transport.
// Delivery is fire-and-forget: an error means the command could not be handed
// to the transport, never that the robot refused it.
type Publisher interface {
	Publish(cmd Command) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(cmd Command) error

// Publish calls f(cmd).
func (f PublisherFunc) Publish(cmd Command) error {
	return f(cmd)
}

// Multi fans a command out to several publishers. Every publisher is called
// even if an earlier one fails; the first error is returned.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(cmd Command) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(cmd.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Ensure implementations satisfy Publisher.
var (
	_ Publisher = (*HTTPPublisher)(nil)
	_ Publisher = PublisherFunc(nil)
	_ Publisher = Multi(nil)
)

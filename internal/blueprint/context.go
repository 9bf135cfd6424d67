// Package blueprint builds the object graph of a deployment (machines,
// containers, load balancers, and the traffic allowed between them) and
// compiles it into the IR consumed by the deployment engine.
//
// All state lives in a Context: the refID counter, the hostname counters, the
// connection registry, and the single Infrastructure. A Context is meant to
// be driven by one goroutine and discarded (or Reset) after compiling.
package blueprint

import (
	"strconv"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// DefaultNamespace is used when an Infrastructure does not name one.
const DefaultNamespace = "knit"

// HostIP is the RuntimeValue for the public IP of the machine a container
// runs on.
var HostIP = spec.Runtime("host.ip")

// Context carries the state of one blueprint compilation.
type Context struct {
	lastRefID   int
	hostnames   map[string]int
	connections []spec.Connection
	infra       *Infrastructure
}

// NewContext returns an empty Context.
func NewContext() *Context {
	c := &Context{}
	c.Reset()
	return c
}

// Reset clears all counters and registries so the Context can build a new
// blueprint from scratch. Entities created before the reset must not be used
// afterwards.
func (c *Context) Reset() {
	c.lastRefID = 0
	c.hostnames = make(map[string]int)
	c.connections = nil
	c.infra = nil
}

// Infrastructure returns the Infrastructure of this Context, or nil if none
// has been constructed yet.
func (c *Context) Infrastructure() *Infrastructure {
	return c.infra
}

// Connections returns a copy of the registered traffic rules in call order.
func (c *Context) Connections() []spec.Connection {
	out := make([]spec.Connection, len(c.connections))
	copy(out, c.connections)
	return out
}

func (c *Context) nextRefID() int {
	c.lastRefID++
	return c.lastRefID
}

// uniqueHostname returns base if unused, and otherwise the first of base1,
// base2, ... that is unused. The result is reserved.
func (c *Context) uniqueHostname(base string) string {
	if _, taken := c.hostnames[base]; !taken {
		c.hostnames[base] = 1
		return base
	}
	for {
		n := c.hostnames[base]
		c.hostnames[base] = n + 1
		candidate := base + strconv.Itoa(n)
		if _, taken := c.hostnames[candidate]; !taken {
			c.hostnames[candidate] = 1
			return candidate
		}
	}
}

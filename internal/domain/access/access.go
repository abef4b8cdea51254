// Package access implements the Access Control component (spec.md §4.G):
// a per-port LAN/VPN/localhost allowlist with explicit-block precedence.
//
// No library in the retrieved pack does CIDR matching; this is built on
// net/netip (documented as a justified stdlib exception in DESIGN.md).
package access

import (
	"net/netip"

	"github.com/rs/zerolog"
)

// Class is the access class a remote address was classified into.
type Class string

const (
	ClassLocalhost Class = "localhost"
	ClassLAN       Class = "lan"
	ClassTailscale Class = "tailscale"
	ClassBlocked   Class = "blocked"
	ClassDenied    Class = "denied" // no matching allow rule for the port
)

// rfc1918 is the private address space allowed as "lan".
var rfc1918 = mustParsePrefixes(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
)

// tailscaleCGNAT is the 100.64.0.0/10 carrier-grade-NAT range Tailscale
// (and similar overlay VPNs) allocate from.
var tailscaleCGNAT = mustParsePrefixes("100.64.0.0/10")

func mustParsePrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))

	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			panic(err) // only ever called with literal constants above
		}

		out = append(out, p)
	}

	return out
}

// PortPolicy names which classes a port accepts.
type PortPolicy struct {
	Port         int
	AllowLAN     bool
	AllowVPN     bool
	AllowLocal   bool
}

// Controller evaluates remote_addr+port against the allowlist, with
// explicit IP blocks taking precedence over everything else (spec.md §4.G).
type Controller struct {
	policies map[int]PortPolicy
	blocked  map[string]bool
	log      zerolog.Logger
}

// New builds a Controller. log is a dedicated access-decision logger,
// distinct from the application's structured logger, so every allow/deny
// decision can be audited independently.
func New(log zerolog.Logger) *Controller {
	return &Controller{
		policies: make(map[int]PortPolicy),
		blocked:  make(map[string]bool),
		log:      log,
	}
}

// SetPolicy registers (or replaces) the allow policy for a port.
func (c *Controller) SetPolicy(p PortPolicy) {
	c.policies[p.Port] = p
}

// Block adds an explicit IP to the deny list. Explicit blocks always win,
// even against localhost.
func (c *Controller) Block(ip string) {
	c.blocked[ip] = true
}

// Unblock removes an explicit IP block.
func (c *Controller) Unblock(ip string) {
	delete(c.blocked, ip)
}

// Decision is the outcome of Evaluate, logged to the access-decision log.
type Decision struct {
	Allowed bool
	Class   Class
}

// Evaluate classifies remoteAddr and checks it against targetPort's policy.
// Explicit blocks are checked first and return Class=blocked regardless of
// any policy.
func (c *Controller) Evaluate(remoteAddr string, targetPort int) Decision {
	addr, err := netip.ParseAddr(remoteAddr)
	if err != nil {
		d := Decision{Allowed: false, Class: ClassDenied}
		c.logDecision(remoteAddr, targetPort, d)

		return d
	}

	if c.blocked[remoteAddr] {
		d := Decision{Allowed: false, Class: ClassBlocked}
		c.logDecision(remoteAddr, targetPort, d)

		return d
	}

	class := classify(addr)

	policy, ok := c.policies[targetPort]
	if !ok {
		d := Decision{Allowed: false, Class: ClassDenied}
		c.logDecision(remoteAddr, targetPort, d)

		return d
	}

	allowed := false

	switch class {
	case ClassLocalhost:
		allowed = policy.AllowLocal
	case ClassLAN:
		allowed = policy.AllowLAN
	case ClassTailscale:
		allowed = policy.AllowVPN
	}

	d := Decision{Allowed: allowed, Class: class}
	c.logDecision(remoteAddr, targetPort, d)

	return d
}

func classify(addr netip.Addr) Class {
	if addr.IsLoopback() {
		return ClassLocalhost
	}

	addr4 := addr
	if addr.Is4In6() {
		addr4 = addr.Unmap()
	}

	for _, p := range rfc1918 {
		if p.Contains(addr4) {
			return ClassLAN
		}
	}

	for _, p := range tailscaleCGNAT {
		if p.Contains(addr4) {
			return ClassTailscale
		}
	}

	return ClassDenied
}

func (c *Controller) logDecision(remoteAddr string, port int, d Decision) {
	ev := c.log.Info()
	if !d.Allowed {
		ev = c.log.Warn()
	}

	ev.Str("remote_addr", remoteAddr).
		Int("port", port).
		Str("class", string(d.Class)).
		Bool("allowed", d.Allowed).
		Msg("access decision")
}

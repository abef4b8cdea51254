package access

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestController() *Controller {
	return New(zerolog.Nop())
}

func TestEvaluate_LocalhostAllowedWhenPolicyPermits(t *testing.T) {
	c := newTestController()
	c.SetPolicy(PortPolicy{Port: 8080, AllowLocal: true})

	d := c.Evaluate("127.0.0.1", 8080)
	require.True(t, d.Allowed)
	require.Equal(t, ClassLocalhost, d.Class)
}

func TestEvaluate_LANDeniedWhenPolicyDoesNotAllowLAN(t *testing.T) {
	c := newTestController()
	c.SetPolicy(PortPolicy{Port: 8080, AllowLocal: true})

	d := c.Evaluate("192.168.1.50", 8080)
	require.False(t, d.Allowed)
	require.Equal(t, ClassLAN, d.Class)
}

func TestEvaluate_TailscaleAllowedWhenVPNPolicySet(t *testing.T) {
	c := newTestController()
	c.SetPolicy(PortPolicy{Port: 9090, AllowVPN: true})

	d := c.Evaluate("100.64.1.2", 9090)
	require.True(t, d.Allowed)
	require.Equal(t, ClassTailscale, d.Class)
}

func TestEvaluate_ExplicitBlockOverridesLocalhost(t *testing.T) {
	c := newTestController()
	c.SetPolicy(PortPolicy{Port: 8080, AllowLocal: true})
	c.Block("127.0.0.1")

	d := c.Evaluate("127.0.0.1", 8080)
	require.False(t, d.Allowed)
	require.Equal(t, ClassBlocked, d.Class)
}

func TestEvaluate_UnblockRestoresAccess(t *testing.T) {
	c := newTestController()
	c.SetPolicy(PortPolicy{Port: 8080, AllowLocal: true})
	c.Block("127.0.0.1")
	c.Unblock("127.0.0.1")

	d := c.Evaluate("127.0.0.1", 8080)
	require.True(t, d.Allowed)
}

func TestEvaluate_NoPolicyForPortIsDenied(t *testing.T) {
	c := newTestController()

	d := c.Evaluate("127.0.0.1", 1234)
	require.False(t, d.Allowed)
	require.Equal(t, ClassDenied, d.Class)
}

func TestEvaluate_PublicAddressIsDenied(t *testing.T) {
	c := newTestController()
	c.SetPolicy(PortPolicy{Port: 8080, AllowLocal: true, AllowLAN: true, AllowVPN: true})

	d := c.Evaluate("8.8.8.8", 8080)
	require.False(t, d.Allowed)
	require.Equal(t, ClassDenied, d.Class)
}

func TestEvaluate_MalformedAddressDenied(t *testing.T) {
	c := newTestController()
	c.SetPolicy(PortPolicy{Port: 8080, AllowLocal: true})

	d := c.Evaluate("not-an-ip", 8080)
	require.False(t, d.Allowed)
	require.Equal(t, ClassDenied, d.Class)
}

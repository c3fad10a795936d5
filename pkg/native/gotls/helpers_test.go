package gotls

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/native"
	"github.com/mash-protocol/tlsbridge/pkg/transport"
)

const serverName = "device.local"

type pki struct {
	ca     *cert.Authority
	server cert.Identity
	client cert.Identity
}

func newPKI(t *testing.T) *pki {
	t.Helper()
	ca, err := cert.NewAuthority("test-ca")
	require.NoError(t, err)
	server, err := ca.IssueServer(serverName, []string{serverName}, nil)
	require.NoError(t, err)
	client, err := ca.IssueClient("controller")
	require.NoError(t, err)
	return &pki{ca: ca, server: server, client: client}
}

func (p *pki) anchors() []*x509.Certificate {
	return []*x509.Certificate{p.ca.Certificate}
}

// endpoint is a context bound to one end of an in-memory pipe.
type endpoint struct {
	ctx    *Context
	bridge *transport.Bridge
	conn   *transport.PipeConn
	pushes int
}

func bind(t *testing.T, ctx native.Context, conn *transport.PipeConn) *endpoint {
	t.Helper()
	c, ok := ctx.(*Context)
	require.True(t, ok)
	ep := &endpoint{ctx: c, bridge: transport.NewBridge(conn), conn: conn}
	st := c.SetIOFuncs(
		func(_ native.ConnectionRef, p []byte) (int, native.Status) {
			return ep.bridge.Pull(p)
		},
		func(_ native.ConnectionRef, p []byte) (int, native.Status) {
			ep.pushes++
			return ep.bridge.Push(p)
		},
	)
	require.Equal(t, native.StatusSuccess, st)
	require.Equal(t, native.StatusSuccess, c.SetConnection(1))
	return ep
}

// newPair creates a client and a server context over a non-blocking pipe.
// The server trusts the test CA for client certificates; the client expects
// serverName.
func newPair(t *testing.T, p *pki, opts ...Option) (client, server *endpoint) {
	t.Helper()
	factory := NewFactory(opts...)
	cc, sc := transport.Pipe()
	cc.SetNonBlocking(true)
	sc.SetNonBlocking(true)

	cctx, st := factory(native.SideClient, native.ConnectionStream)
	require.Equal(t, native.StatusSuccess, st)
	sctx, st := factory(native.SideServer, native.ConnectionStream)
	require.Equal(t, native.StatusSuccess, st)

	client = bind(t, cctx, cc)
	server = bind(t, sctx, sc)

	require.Equal(t, native.StatusSuccess, client.ctx.SetPeerDomainName(serverName))
	require.Equal(t, native.StatusSuccess, client.ctx.SetCertificateAuthorities(p.anchors(), true))
	require.Equal(t, native.StatusSuccess, server.ctx.SetCertificate(p.server, nil))
	require.Equal(t, native.StatusSuccess, server.ctx.SetCertificateAuthorities(p.anchors(), true))
	return client, server
}

// step drives both handshakes from one goroutine until neither reports
// StatusWouldBlock. Any other status stops the loop and is returned, so
// tests can react to suspension points.
func step(t *testing.T, client, server *endpoint) (cst, sst native.Status) {
	t.Helper()
	cst, sst = native.StatusWouldBlock, native.StatusWouldBlock
	for range 50 {
		if cst == native.StatusWouldBlock {
			cst = client.ctx.Handshake()
		}
		if sst == native.StatusWouldBlock {
			sst = server.ctx.Handshake()
		}
		if cst != native.StatusWouldBlock && sst != native.StatusWouldBlock {
			return cst, sst
		}
		if cst != native.StatusWouldBlock && cst != native.StatusSuccess {
			return cst, sst
		}
		if sst != native.StatusWouldBlock && sst != native.StatusSuccess {
			return cst, sst
		}
	}
	t.Fatalf("handshake did not settle: client=%v server=%v", cst, sst)
	return cst, sst
}

// connect completes a handshake and fails the test otherwise.
func connect(t *testing.T, client, server *endpoint) {
	t.Helper()
	cst, sst := step(t, client, server)
	require.Equal(t, native.StatusSuccess, cst)
	require.Equal(t, native.StatusSuccess, sst)
}

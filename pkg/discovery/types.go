package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of a tlsbridge server.
	ServiceType = "_tlsbridge._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the port advertised when none is given.
	DefaultPort = 8443

	// InstancePrefix prefixes generated instance names.
	InstancePrefix = "tlsbridge-"
)

// TXT record keys.
const (
	TXTKeyFingerprint = "fp"   // Leaf certificate SHA-256 (required)
	TXTKeyPeerName    = "pn"   // Name to verify (optional)
	TXTKeyALPN        = "alpn" // ALPN protocols, comma-separated (optional)
	TXTKeyMinVersion  = "v"    // Minimum TLS version (optional)
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second

	// DefaultTTL is the default DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTValueLen is the longest value a single TXT string can carry
	// alongside its key.
	MaxTXTValueLen = 250
)

// Errors.
var (
	ErrNotFound            = errors.New("discovery: service not found")
	ErrNotAdvertising      = errors.New("discovery: not advertising")
	ErrMissingRequired     = errors.New("discovery: missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("discovery: invalid TXT record")
	ErrInstanceNameTooLong = errors.New("discovery: invalid instance name")
	ErrInvalidPairingCode  = errors.New("discovery: invalid pairing code")
)

// ServiceInfo is what a server advertises.
type ServiceInfo struct {
	// InstanceName is the DNS-SD instance name. Empty means
	// InstancePrefix plus the short fingerprint.
	InstanceName string

	// Port is the TCP port. Zero means DefaultPort.
	Port uint16

	// Fingerprint is the SHA-256 of the server's leaf certificate.
	Fingerprint string

	// PeerName is the name clients should expect in the certificate.
	PeerName string

	// ALPN lists the protocols the server accepts.
	ALPN []string

	// MinVersion is "1.2" or "1.3" when set.
	MinVersion string
}

// Instance returns the instance name, generating one if unset.
func (i *ServiceInfo) Instance() string {
	if i.InstanceName != "" {
		return i.InstanceName
	}
	fp := i.Fingerprint
	if len(fp) > 16 {
		fp = fp[:16]
	}
	return InstancePrefix + fp
}

// Service is a discovered server.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Fingerprint string
	PeerName    string
	ALPN        []string
	MinVersion  string
}

// Address returns host:port for dialing, preferring a resolved address.
func (s *Service) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// ServiceEntry is a resolved DNS-SD entry, independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToService decodes the entry's TXT records.
func (e *ServiceEntry) ToService() (*Service, error) {
	info, err := DecodeTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	return &Service{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		Fingerprint:  info.Fingerprint,
		PeerName:     info.PeerName,
		ALPN:         info.ALPN,
		MinVersion:   info.MinVersion,
	}, nil
}

// Advertiser publishes a server.
type Advertiser interface {
	// Advertise starts advertising info, replacing any previous service.
	Advertise(ctx context.Context, info *ServiceInfo) error

	// Update replaces the TXT records of the advertised service.
	Update(info *ServiceInfo) error

	// Stop withdraws the service.
	Stop()
}

// Browser finds servers.
type Browser interface {
	// Browse emits each service once, aggregating addresses across
	// interfaces. The channel is closed when ctx is done.
	Browse(ctx context.Context) (<-chan *Service, error)

	// Find returns the first service match accepts.
	Find(ctx context.Context, match func(*Service) bool) (*Service, error)

	// Stop cancels every active browse.
	Stop()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when the context has no deadline.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}

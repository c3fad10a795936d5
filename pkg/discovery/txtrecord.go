package discovery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyFingerprint] = strings.ToLower(info.Fingerprint)

	// Optional fields
	if info.PeerName != "" {
		txt[TXTKeyPeerName] = info.PeerName
	}
	if len(info.ALPN) > 0 {
		txt[TXTKeyALPN] = strings.Join(info.ALPN, ",")
	}
	if info.MinVersion != "" {
		txt[TXTKeyMinVersion] = info.MinVersion
	}

	return txt
}

// DecodeTXT parses TXT records.
func DecodeTXT(txt TXTRecordMap) (*ServiceInfo, error) {
	info := &ServiceInfo{}

	fp, ok := txt[TXTKeyFingerprint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyFingerprint)
	}
	info.Fingerprint, ok = cert.NormalizeFingerprint(fp)
	if !ok {
		return nil, fmt.Errorf("%w: malformed fingerprint", ErrInvalidTXTRecord)
	}

	info.PeerName = txt[TXTKeyPeerName]
	if alpn := txt[TXTKeyALPN]; alpn != "" {
		for p := range strings.SplitSeq(alpn, ",") {
			if p = strings.TrimSpace(p); p != "" {
				info.ALPN = append(info.ALPN, p)
			}
		}
	}

	switch v := txt[TXTKeyMinVersion]; v {
	case "", "1.2", "1.3":
		info.MinVersion = v
	default:
		return nil, fmt.Errorf("%w: version %q", ErrInvalidTXTRecord, v)
	}

	return info, nil
}

// Validate checks that info can be advertised.
func (i *ServiceInfo) Validate() error {
	if _, ok := cert.NormalizeFingerprint(i.Fingerprint); !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyFingerprint)
	}
	if err := ValidateInstanceName(i.Instance()); err != nil {
		return err
	}
	for k, v := range EncodeTXT(i) {
		if len(k)+1+len(v) > MaxTXTValueLen {
			return fmt.Errorf("%w: %s too long", ErrInvalidTXTRecord, k)
		}
	}
	return nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a sorted slice of
// "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if !found && k == "" {
			continue
		}
		// Key without value (boolean flag)
		txt[k] = v
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

package discovery

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

var testFingerprint = strings.Repeat("3a", 32)

func TestEncodeDecodeTXT(t *testing.T) {
	info := &ServiceInfo{
		Fingerprint: strings.ToUpper(testFingerprint),
		PeerName:    "device.local",
		ALPN:        []string{"tlsbridge/1", "h2"},
		MinVersion:  "1.3",
	}

	txt := EncodeTXT(info)
	if txt[TXTKeyFingerprint] != testFingerprint {
		t.Errorf("Expected lowercase fingerprint, got %q", txt[TXTKeyFingerprint])
	}
	if txt[TXTKeyALPN] != "tlsbridge/1,h2" {
		t.Errorf("Unexpected ALPN record %q", txt[TXTKeyALPN])
	}

	decoded, err := DecodeTXT(txt)
	if err != nil {
		t.Fatalf("DecodeTXT failed: %v", err)
	}
	if decoded.Fingerprint != testFingerprint {
		t.Errorf("Fingerprint: expected %s, got %s", testFingerprint, decoded.Fingerprint)
	}
	if decoded.PeerName != info.PeerName {
		t.Errorf("PeerName: expected %s, got %s", info.PeerName, decoded.PeerName)
	}
	if !reflect.DeepEqual(decoded.ALPN, info.ALPN) {
		t.Errorf("ALPN: expected %v, got %v", info.ALPN, decoded.ALPN)
	}
	if decoded.MinVersion != "1.3" {
		t.Errorf("MinVersion: expected 1.3, got %s", decoded.MinVersion)
	}
}

func TestEncodeTXTOmitsOptional(t *testing.T) {
	txt := EncodeTXT(&ServiceInfo{Fingerprint: testFingerprint})
	if len(txt) != 1 {
		t.Errorf("Expected only the fingerprint record, got %v", txt)
	}
}

func TestDecodeTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"MissingFingerprint", TXTRecordMap{TXTKeyPeerName: "x"}, ErrMissingRequired},
		{"ShortFingerprint", TXTRecordMap{TXTKeyFingerprint: "abcd"}, ErrInvalidTXTRecord},
		{"NonHexFingerprint", TXTRecordMap{TXTKeyFingerprint: strings.Repeat("zz", 32)}, ErrInvalidTXTRecord},
		{"BadVersion", TXTRecordMap{TXTKeyFingerprint: testFingerprint, TXTKeyMinVersion: "1.1"}, ErrInvalidTXTRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTXT(tt.txt)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTXTStrings(t *testing.T) {
	strs := TXTRecordsToStrings(TXTRecordMap{"v": "1.3", "fp": "ab", "alpn": "x"})
	want := []string{"alpn=x", "fp=ab", "v=1.3"}
	if !reflect.DeepEqual(strs, want) {
		t.Errorf("Expected %v, got %v", want, strs)
	}

	txt := StringsToTXTRecords([]string{"fp=ab=cd", "flag", "", "pn="})
	if txt["fp"] != "ab=cd" {
		t.Errorf("Value with '=' not preserved: %q", txt["fp"])
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Error("Boolean flag not decoded")
	}
	if v, ok := txt["pn"]; !ok || v != "" {
		t.Error("Empty value not decoded")
	}
	if len(txt) != 3 {
		t.Errorf("Expected 3 records, got %d", len(txt))
	}
}

func TestServiceInfoValidate(t *testing.T) {
	info := &ServiceInfo{Fingerprint: testFingerprint}
	if err := info.Validate(); err != nil {
		t.Errorf("Valid info rejected: %v", err)
	}
	if got := info.Instance(); got != InstancePrefix+testFingerprint[:16] {
		t.Errorf("Unexpected generated instance name %q", got)
	}

	if err := (&ServiceInfo{}).Validate(); !errors.Is(err, ErrMissingRequired) {
		t.Errorf("Expected ErrMissingRequired, got %v", err)
	}

	long := &ServiceInfo{Fingerprint: testFingerprint, InstanceName: strings.Repeat("x", MaxInstanceNameLen+1)}
	if err := long.Validate(); !errors.Is(err, ErrInstanceNameTooLong) {
		t.Errorf("Expected ErrInstanceNameTooLong, got %v", err)
	}

	alpn := &ServiceInfo{Fingerprint: testFingerprint, ALPN: []string{strings.Repeat("p", 300)}}
	if err := alpn.Validate(); !errors.Is(err, ErrInvalidTXTRecord) {
		t.Errorf("Expected ErrInvalidTXTRecord, got %v", err)
	}
}

func TestServiceEntryToService(t *testing.T) {
	entry := ServiceEntry{
		Instance: "kitchen",
		Service:  ServiceType,
		Domain:   Domain,
		Host:     "kitchen.local",
		Port:     9443,
		Text:     []string{"fp=" + testFingerprint, "pn=kitchen.local"},
		Addrs:    []string{"192.168.1.10", "fe80::1"},
	}

	svc, err := entry.ToService()
	if err != nil {
		t.Fatalf("ToService failed: %v", err)
	}
	if svc.InstanceName != "kitchen" || svc.PeerName != "kitchen.local" {
		t.Errorf("Unexpected service %+v", svc)
	}
	if svc.Address() != "192.168.1.10:9443" {
		t.Errorf("Unexpected address %s", svc.Address())
	}

	svc.Addresses = nil
	if svc.Address() != "kitchen.local:9443" {
		t.Errorf("Expected host fallback, got %s", svc.Address())
	}

	entry.Text = []string{"pn=kitchen.local"}
	if _, err := entry.ToService(); err == nil {
		t.Error("Expected an error without a fingerprint")
	}
}

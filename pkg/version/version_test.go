package version

import (
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		major uint16
		minor uint16
	}{
		{"1.0", 1, 0},
		{"1.1", 1, 1},
		{"2.0", 2, 0},
		{"10.23", 10, 23},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major {
				t.Errorf("Major = %d, want %d", v.Major, tt.major)
			}
			if v.Minor != tt.minor {
				t.Errorf("Minor = %d, want %d", v.Minor, tt.minor)
			}
			if v.String() != tt.input {
				t.Errorf("String() = %q, want %q", v.String(), tt.input)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"1",
		"abc",
		"1.0.0",
		"1.x",
		"-1.0",
		".1",
		"1.",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	v1, _ := Parse("1.0")
	v11, _ := Parse("1.1")
	v2, _ := Parse("2.0")
	if !v1.Compatible(v11) {
		t.Error("1.0 should be compatible with 1.1")
	}
	if v1.Compatible(v2) {
		t.Error("1.0 should not be compatible with 2.0")
	}
}

func TestALPN(t *testing.T) {
	if got := ALPNProtocol(1); got != "tlsbridge/1" {
		t.Errorf("ALPNProtocol(1) = %q", got)
	}

	major, err := MajorFromALPN("tlsbridge/7")
	if err != nil || major != 7 {
		t.Errorf("MajorFromALPN = %d, %v", major, err)
	}

	for _, bad := range []string{"h2", "tlsbridge/", "tlsbridge/x", "other/1"} {
		if _, err := MajorFromALPN(bad); err == nil {
			t.Errorf("MajorFromALPN(%q) should fail", bad)
		}
	}

	protos := SupportedALPNProtocols()
	if len(protos) != 1 || protos[0] != "tlsbridge/1" {
		t.Errorf("SupportedALPNProtocols() = %v", protos)
	}
}

func TestCheckNegotiated(t *testing.T) {
	tests := []struct {
		alpn    string
		wantErr bool
	}{
		{"", false},
		{"tlsbridge/1", false},
		{"tlsbridge/2", true},
		{"h2", true},
	}
	for _, tt := range tests {
		t.Run(tt.alpn, func(t *testing.T) {
			err := CheckNegotiated(tt.alpn)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckNegotiated(%q) = %v, wantErr %v", tt.alpn, err, tt.wantErr)
			}
		})
	}
}

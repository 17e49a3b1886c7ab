package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/hail/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"RideID", id.NewRideID, "ride_"},
		{"DriverID", id.NewDriverID, "drv_"},
		{"UndeliveredID", id.NewUndeliveredID, "und_"},
		{"SubscriberID", id.NewSubscriberID, "sub_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixRide)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixRide {
		t.Errorf("expected prefix %q, got %q", id.PrefixRide, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"RideID", id.NewRideID, id.ParseRideID},
		{"DriverID", id.NewDriverID, id.ParseDriverID},
		{"UndeliveredID", id.NewUndeliveredID, id.ParseUndeliveredID},
		{"SubscriberID", id.NewSubscriberID, id.ParseSubscriberID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := tt.newFn()
			parsed, err := tt.parseFn(orig.String())
			if err != nil {
				t.Fatalf("parse %q: %v", orig.String(), err)
			}
			if parsed.String() != orig.String() {
				t.Errorf("round trip mismatch: %q != %q", parsed.String(), orig.String())
			}
		})
	}
}

func TestParseWithPrefixRejectsWrongPrefix(t *testing.T) {
	rideID := id.NewRideID()

	if _, err := id.ParseDriverID(rideID.String()); err == nil {
		t.Error("expected error parsing ride ID as driver ID")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := []string{"", "not-a-typeid", "ride_!!!"}

	for _, s := range tests {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil ID String() = %q, want empty", i.String())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := id.NewRideID()

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var parsed id.ID
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("JSON round trip mismatch: %q != %q", parsed.String(), orig.String())
	}
}

func TestSQLValueScan(t *testing.T) {
	orig := id.NewDriverID()

	v, err := orig.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned.String() != orig.String() {
		t.Errorf("SQL round trip mismatch: %q != %q", scanned.String(), orig.String())
	}

	var nilID id.ID
	if err := nilID.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !nilID.IsNil() {
		t.Error("scanning nil should produce the Nil ID")
	}
}

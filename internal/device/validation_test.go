package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateStatus(t *testing.T) {
	for _, s := range AllStatuses() {
		if err := ValidateStatus(s); err != nil {
			t.Errorf("ValidateStatus(%q) error = %v", s, err)
		}
	}
	for _, s := range []Status{"", "vacio", "SUCIO"} {
		if err := ValidateStatus(s); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("ValidateStatus(%q) error = %v, want ErrInvalidStatus", s, err)
		}
	}
}

func TestValidateLink_Defaults(t *testing.T) {
	l := &Link{Alias: "  Comedero  ", Type: TypeFeeder, DeviceID: 1, EnvironmentID: 1}
	if err := ValidateLink(l); err != nil {
		t.Fatalf("ValidateLink() error = %v", err)
	}
	if l.Alias != "Comedero" {
		t.Errorf("Alias = %q, want trimmed", l.Alias)
	}
	if l.Status != StatusSupplied {
		t.Errorf("Status = %q, want %q", l.Status, StatusSupplied)
	}
	if len(l.Identifier) != 36 {
		t.Errorf("Identifier = %q, want a UUID", l.Identifier)
	}
}

func TestValidateLink_Errors(t *testing.T) {
	tests := []struct {
		name    string
		link    *Link
		wantErr error
	}{
		{"nil", nil, ErrInvalidLink},
		{"missing alias", &Link{Type: TypeFeeder, DeviceID: 1, EnvironmentID: 1}, ErrInvalidLink},
		{"long alias", &Link{Alias: strings.Repeat("a", maxNameLength+1), Type: TypeFeeder, DeviceID: 1, EnvironmentID: 1}, ErrInvalidLink},
		{"negative food", &Link{Alias: "a", Type: TypeFeeder, FoodGrams: floatPtr(-1), DeviceID: 1, EnvironmentID: 1}, ErrInvalidFood},
		{"long identifier", &Link{Alias: "a", Type: TypeFeeder, Identifier: strings.Repeat("x", 65), DeviceID: 1, EnvironmentID: 1}, ErrInvalidLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateLink(tt.link); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateLink() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLink_CloneIsDeep(t *testing.T) {
	l := &Link{ID: 3, Interval: intPtr(10), FoodGrams: floatPtr(5)}
	c := l.Clone()
	*c.Interval = 20
	*c.FoodGrams = 1

	if *l.Interval != 10 || *l.FoodGrams != 5 {
		t.Errorf("Clone shares pointers with the original")
	}
}

func TestLink_DeviceLink(t *testing.T) {
	l := &Link{ID: 5, Alias: "Arenero", Type: TypeLitterBox, DeviceID: 42, EnvironmentID: 2}
	got := l.DeviceLink()
	if got.ID != 5 || got.DeviceID != 42 || got.EnvironmentID != 2 || got.Type != "arenero" || got.Alias != "Arenero" {
		t.Errorf("DeviceLink() = %+v", got)
	}
}

func TestDeviceDocument(t *testing.T) {
	d := &Device{ID: 12, Name: "ESP32", EnvironmentID: int64Ptr(3)}
	doc := deviceDocument(d)

	if doc["_id"] != int64(12) || doc["name"] != "ESP32" || doc["environment_id"] != int64(3) {
		t.Errorf("deviceDocument() = %v", doc)
	}
	if _, ok := deviceDocument(&Device{ID: 1, Name: "x"})["environment_id"]; ok {
		t.Error("environment_id should be omitted when unset")
	}
}

package driver_test

import (
	"errors"
	"testing"

	"github.com/xraph/hail/driver"
)

func TestEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		d       driver.Driver
		wantErr error
	}{
		{
			name:    "active approved driver",
			d:       driver.Driver{IsActive: true, RegistrationApproved: true},
			wantErr: nil,
		},
		{
			name:    "blocked wins over everything",
			d:       driver.Driver{IsActive: true, IsBlocked: true, RegistrationApproved: true},
			wantErr: driver.ErrBlocked,
		},
		{
			name:    "inactive",
			d:       driver.Driver{IsActive: false, RegistrationApproved: true},
			wantErr: driver.ErrInactive,
		},
		{
			name:    "not approved",
			d:       driver.Driver{IsActive: true, RegistrationApproved: false},
			wantErr: driver.ErrNotApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.d.Eligible(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Eligible() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

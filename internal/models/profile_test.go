package models

import (
	"strings"
	"testing"
)

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{
			name:    "Valid tenant",
			profile: Profile{Email: "tenant@example.com", FullName: "Ama Mensah", Role: RoleTenant},
			wantErr: false,
		},
		{
			name:    "Valid agent",
			profile: Profile{Email: "agent@example.com", FullName: "Kofi Boateng", Role: RoleAgent},
			wantErr: false,
		},
		{
			name:    "Empty email",
			profile: Profile{Email: "", FullName: "Ama Mensah", Role: RoleTenant},
			wantErr: true,
		},
		{
			name:    "Invalid email",
			profile: Profile{Email: "invalid-email", FullName: "Ama Mensah", Role: RoleTenant},
			wantErr: true,
		},
		{
			name:    "Full name too short",
			profile: Profile{Email: "tenant@example.com", FullName: "A", Role: RoleTenant},
			wantErr: true,
		},
		{
			name:    "Full name too long",
			profile: Profile{Email: "tenant@example.com", FullName: strings.Repeat("x", 101), Role: RoleTenant},
			wantErr: true,
		},
		{
			name:    "Unknown role",
			profile: Profile{Email: "tenant@example.com", FullName: "Ama Mensah", Role: "landlord"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Profile.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

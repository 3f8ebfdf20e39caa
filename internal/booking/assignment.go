package booking

import (
	"context"
	"fmt"

	"github.com/gynoconnect/clinic-scheduler/internal/identity"
)

// AssignmentPolicy picks a doctor when a booking request does not name one.
type AssignmentPolicy interface {
	Assign(ctx context.Context) (string, error)
}

// FirstDoctorPolicy assigns the registered doctor with the lowest id.
type FirstDoctorPolicy struct {
	Directory identity.Directory
}

func (p FirstDoctorPolicy) Assign(ctx context.Context) (string, error) {
	if p.Directory == nil {
		return "", identity.ErrNoDoctor
	}
	doctors, err := p.Directory.Doctors(ctx)
	if err != nil {
		return "", fmt.Errorf("booking: assign doctor: %w", err)
	}
	if len(doctors) == 0 {
		return "", identity.ErrNoDoctor
	}
	return doctors[0].ID, nil
}

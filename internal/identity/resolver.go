package identity

import (
	"context"
	"sort"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

// Recipient is the contact view of an appointment used for display and
// notifications.
type Recipient struct {
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email,omitempty"`
	PatientPhone string `json:"patient_phone,omitempty"`
	DoctorName   string `json:"doctor_name"`
}

// Resolver merges directory records with the appointment's denormalized
// fields. Directory records win; the appointment fields fill gaps.
type Resolver struct {
	dir    Directory
	logger *logging.Logger
}

func NewResolver(dir Directory, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{dir: dir, logger: logger}
}

// Recipient never fails: directory errors are logged and the appointment's
// own fields are used.
func (r *Resolver) Recipient(ctx context.Context, a *appointments.Appointment) Recipient {
	rec := Recipient{PatientName: a.PatientName, PatientPhone: a.PatientPhone}

	ids := []string{a.DoctorID}
	if a.PatientID != nil && *a.PatientID != "" {
		ids = append(ids, *a.PatientID)
	}
	people, err := r.dir.Lookup(ctx, ids...)
	if err != nil {
		r.logger.Warn("identity: lookup failed, using appointment fields", "appointment_id", a.ID.String(), "error", err)
		return rec
	}

	if doctor, ok := people[a.DoctorID]; ok {
		rec.DoctorName = doctor.Name
	}
	if a.PatientID != nil {
		if patient, ok := people[*a.PatientID]; ok {
			if patient.Name != "" {
				rec.PatientName = patient.Name
			}
			if patient.Phone != "" {
				rec.PatientPhone = patient.Phone
			}
			rec.PatientEmail = patient.Email
		}
	}
	return rec
}

func sortByID(people []Person) {
	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })
}

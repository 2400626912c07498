package appointment

// Authorize checks that actor may mutate appt. Patients and providers may only
// touch appointments they are party to.
func Authorize(actor Actor, appt *Appointment) error {
	switch actor.Role {
	case RoleAdmin, RoleSystem:
		return nil
	case RolePatient:
		if appt != nil && actor.ID == appt.PatientID {
			return nil
		}
	case RoleProvider:
		if appt != nil && actor.ID == appt.ProviderID {
			return nil
		}
	}
	return ErrUnauthorized
}

package appointment

import (
	"fmt"

	"github.com/hackgods/clinic-queue/internal/notify"
)

const dayLayout = "Monday, Jan 2"

func recipientOf(p *Patient) notify.Recipient {
	r := notify.Recipient{Name: p.Name}
	if p.Email != nil {
		r.Email = *p.Email
	}
	if p.Phone != nil {
		r.Phone = *p.Phone
	}
	return r
}

func bookedMessage(a *Appointment) notify.Message {
	return notify.Message{
		Subject: "Appointment confirmed",
		Body: fmt.Sprintf("Your %s appointment is booked for %s at %s.",
			a.Department, a.Date.Format(dayLayout), a.TimeSlot.StartClock()),
	}
}

func rescheduledMessage(a *Appointment) notify.Message {
	return notify.Message{
		Subject: "Appointment rescheduled",
		Body: fmt.Sprintf("Your %s appointment has moved to %s at %s.",
			a.Department, a.Date.Format(dayLayout), a.TimeSlot.StartClock()),
	}
}

func checkedInMessage(a *Appointment) notify.Message {
	body := fmt.Sprintf("You are checked in for %s.", a.Department)
	if a.EstimatedWaitTime != nil {
		body += fmt.Sprintf(" Estimated wait: %.0f minutes.", *a.EstimatedWaitTime)
	}
	return notify.Message{Subject: "Checked in", Body: body}
}

func cancelledMessage(a *Appointment) notify.Message {
	return notify.Message{
		Subject: "Appointment cancelled",
		Body: fmt.Sprintf("Your %s appointment on %s at %s was cancelled.",
			a.Department, a.Date.Format(dayLayout), a.TimeSlot.StartClock()),
	}
}

func reminderMessage(a *Appointment) notify.Message {
	return notify.Message{
		Subject: "Appointment reminder",
		Body: fmt.Sprintf("Reminder: your %s appointment is on %s at %s.",
			a.Department, a.Date.Format(dayLayout), a.TimeSlot.StartClock()),
	}
}

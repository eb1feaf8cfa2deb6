package calendar

import (
	"time"

	ical "github.com/arran4/golang-ical"
)

// DefaultProductID identifies feeds produced by ExportICS.
const DefaultProductID = "-//portal-scheduler//confirmed meetings//EN"

// ExportICS serializes confirmed meetings as a published iCalendar feed.
// Events are emitted in start order with UTC timestamps and use the meeting
// ID as their UID so subscribers can reconcile updates.
func ExportICS(meetings []Meeting, productID string, stamp time.Time) string {
	if productID == "" {
		productID = DefaultProductID
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	ordered := append([]Meeting(nil), meetings...)
	sortMeetings(ordered)

	for _, meeting := range ordered {
		event := cal.AddEvent(meeting.ID)
		event.SetDtStampTime(stamp.UTC())
		if !meeting.CreatedAt.IsZero() {
			event.SetCreatedTime(meeting.CreatedAt.UTC())
		}
		event.SetStartAt(meeting.Start.UTC())
		event.SetEndAt(meeting.End.UTC())
		event.SetSummary(meeting.Title)
		if meeting.Description != "" {
			event.SetDescription(meeting.Description)
		}
	}

	return cal.Serialize()
}

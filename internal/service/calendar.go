package service

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"cems/internal/model"
)

const calendarProductID = "-//CEMS//Event Registration//EN"

// buildEventCalendar 为单个报名生成 iCalendar 文件，UID 由报名 ID 决定
func buildEventCalendar(event *model.Event, reg *model.Registration, loc *time.Location, now time.Time) ([]byte, error) {
	start, err := event.StartsAt(loc)
	if err != nil {
		return nil, err
	}
	end, err := event.EndsAt(loc)
	if err != nil {
		return nil, err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)

	vevent := cal.AddEvent(fmt.Sprintf("%s@cems", reg.RegistrationID))
	vevent.SetDtStampTime(now.UTC())
	vevent.SetCreatedTime(reg.RegisteredAt.UTC())
	vevent.SetStartAt(start.UTC())
	vevent.SetEndAt(end.UTC())
	vevent.SetSummary(event.Title)
	vevent.SetDescription(event.Description)

	if v := event.Venue; v != nil {
		location := v.Name
		if v.Location != "" {
			location = strings.TrimSpace(v.Name + ", " + v.Location)
		}
		vevent.SetLocation(location)
	}
	if o := event.Organizer; o != nil && o.Email != "" {
		vevent.SetOrganizer("mailto:"+o.Email, ics.WithCN(o.FullName()))
	}
	if event.Status == model.EventCancelled {
		vevent.SetStatus(ics.ObjectStatusCancelled)
	} else {
		vevent.SetStatus(ics.ObjectStatusConfirmed)
	}

	return []byte(cal.Serialize()), nil
}

package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/interval"
)

const (
	icalProductID   = "-//availability-engine//freebusy//EN"
	icalContentType = "text/calendar; charset=utf-8"
	icalUTCLayout   = "20060102T150405Z"
)

// encodeFreeBusy renders busy time as a VCALENDAR holding one VFREEBUSY
// component, the format calendar clients use for free/busy lookups.
func encodeFreeBusy(resourceID string, window domain.Window, busy []interval.Interval, stamp time.Time) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icalProductID)

	fb := ical.NewComponent(ical.CompFreeBusy)
	fb.Props.SetText(ical.PropUID, fmt.Sprintf("%s-%d-%d@availability-engine", resourceID, window.Start.Unix(), window.End.Unix()))
	fb.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	fb.Props.SetDateTime(ical.PropDateTimeStart, window.Start.UTC())
	fb.Props.SetDateTime(ical.PropDateTimeEnd, window.End.UTC())
	for _, iv := range busy {
		prop := ical.NewProp(ical.PropFreeBusy)
		prop.Params.Set("FBTYPE", "BUSY")
		prop.Value = iv.Start.UTC().Format(icalUTCLayout) + "/" + iv.End.UTC().Format(icalUTCLayout)
		fb.Props.Add(prop)
	}
	cal.Children = append(cal.Children, fb)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

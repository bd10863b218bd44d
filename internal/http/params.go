package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/example/availability-engine/internal/application"
	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/interval"
	"github.com/example/availability-engine/internal/scheduler"
)

// fieldErrors collects transport-level parse failures so they are reported
// the same way as service validation.
type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &application.ValidationError{FieldErrors: f}
}

func queryTime(c *gin.Context, key string, errs fieldErrors) mo.Option[time.Time] {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return mo.None[time.Time]()
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		errs.add(key, "must be an RFC 3339 timestamp")
		return mo.None[time.Time]()
	}
	return mo.Some(t)
}

func queryInt(c *gin.Context, key string, errs fieldErrors) mo.Option[int] {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return mo.None[int]()
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		errs.add(key, "must be an integer")
		return mo.None[int]()
	}
	return mo.Some(n)
}

func queryList(c *gin.Context, key string) []string {
	out := make([]string, 0)
	for _, raw := range c.QueryArray(key) {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// queryWindow reads the required from/to pair.
func queryWindow(c *gin.Context, errs fieldErrors) domain.Window {
	from := queryTime(c, "from", errs)
	to := queryTime(c, "to", errs)
	if from.IsAbsent() {
		errs.add("from", "is required")
	}
	if to.IsAbsent() {
		errs.add("to", "is required")
	}
	return domain.Window{Start: from.OrEmpty(), End: to.OrEmpty()}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func toMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

func parseWeekday(value string) (time.Weekday, bool) {
	name := strings.ToLower(strings.TrimSpace(value))
	for day := time.Sunday; day <= time.Saturday; day++ {
		full := strings.ToLower(day.String())
		if name == full || name == full[:3] {
			return day, true
		}
	}
	return time.Sunday, false
}

func parseWeekdays(field string, values []string, errs fieldErrors) []time.Weekday {
	out := make([]time.Weekday, 0, len(values))
	for _, value := range values {
		day, ok := parseWeekday(value)
		if !ok {
			errs.add(field, "unknown weekday "+strconv.Quote(value))
			continue
		}
		out = append(out, day)
	}
	return out
}

func weekdayNames(days []time.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, day := range days {
		out = append(out, strings.ToLower(day.String()))
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

type intervalDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func toIntervalDTOs(intervals []interval.Interval) []intervalDTO {
	out := make([]intervalDTO, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, intervalDTO{Start: formatTime(iv.Start), End: formatTime(iv.End)})
	}
	return out
}

func toSlotDTOs(slots []domain.Slot) []intervalDTO {
	out := make([]intervalDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, intervalDTO{Start: formatTime(slot.Start), End: formatTime(slot.End)})
	}
	return out
}

type verdictDTO struct {
	ResourceID            string   `json:"resource_id"`
	Accepted              bool     `json:"accepted"`
	Reason                string   `json:"reason,omitempty"`
	ConflictingBookingIDs []string `json:"conflicting_booking_ids,omitempty"`
}

func toVerdictDTOs(verdicts []scheduler.Verdict) []verdictDTO {
	out := make([]verdictDTO, 0, len(verdicts))
	for _, v := range verdicts {
		out = append(out, verdictDTO{
			ResourceID:            v.ResourceID,
			Accepted:              v.Accepted(),
			Reason:                string(v.Reason),
			ConflictingBookingIDs: v.ConflictingBookingIDs,
		})
	}
	return out
}

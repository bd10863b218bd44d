// Package http exposes the booking engine over a JSON API built on gin.
//
// The router serves the following endpoints under /api:
//   - GET, POST /resources; GET, PUT, DELETE /resources/{id}: resource catalog
//     exchanging the resourceDTO payload. Working hours are "HH:MM" pairs per
//     lowercase weekday.
//   - GET, POST /resources/{id}/blocked-dates, DELETE
//     /resources/{id}/blocked-dates/{blocked_id}: blocked spans.
//   - GET, POST /resources/{id}/buffer-rules, DELETE
//     /resources/{id}/buffer-rules/{rule_id}: buffers in minutes.
//   - GET /resources/{id}/availability?from&to[&min_duration][&format=ics]:
//     free intervals as JSON, or busy time as an iCalendar VFREEBUSY.
//   - POST /conflicts/check: judges a proposal without booking it.
//   - GET /slots?resource_ids&service_id&duration[&step][&limit]&from&to:
//     start times at which every resource is free.
//   - POST /bookings, GET /bookings/{id}, DELETE /bookings/{id} (or POST
//     /bookings/{id}/cancel): bookings; rejected proposals answer 409 with
//     the per-resource verdicts.
//   - POST /links, GET /links/{slug}, GET /links/{slug}/slots, POST
//     /links/{slug}/bookings: booking links.
//   - POST /recurrence/expand: previews a recurrence rule.
//
// GET /health pings the store. Timestamps are RFC 3339 and durations are
// integer minutes. Errors share the errorResponse shape defined in
// responder.go.
package http

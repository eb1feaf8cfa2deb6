// Package http provides HTTP handlers and middleware for the scheduler API.
//
// Every route except /healthz, /metrics and POST /sessions requires either a
// session token (Authorization: Bearer or the `session_token` cookie) or the
// administrator key in the `X-Admin-Key` header. Session tokens are HS256 JWTs
// whose subject is the user ID and whose `admin` claim marks administrators.
//
// The router exposes the following endpoints:
//   - POST /sessions: exchanges {"admin_key","user_id"} for an administrator
//     session token. DELETE /sessions/current clears the session cookie.
//   - GET /policy, PUT /policy: the weekly availability policy as a
//     policystore.Document. Only administrators may replace it.
//   - GET /slots?date=YYYY-MM-DD: free slots of a date.
//   - GET /availability?date=&start=HH:MM&duration=: whether a window is free.
//   - GET /open-days?from=&to=: dates on which the policy accepts bookings.
//   - POST /requests, GET /requests?status=&requester_id=, GET /requests/{id}:
//     meeting requests. Requesters only ever see their own.
//   - POST /requests/{id}/confirm, POST /requests/{id}/reject: administrator
//     decisions. A confirm that lost its slot answers 409 SLOT_ALREADY_BOOKED.
//   - GET /meetings?from=&to=, GET /meetings/{id}, DELETE /meetings/{id},
//     DELETE /meetings: confirmed meetings.
//   - GET /calendar?filter=&month=&day=&meeting=: a rendered calendar grid.
//   - GET /calendar.ics?from=&to=: confirmed meetings as an iCalendar feed.
//   - GET /refresh/ws: a websocket that receives {"type":"refresh"} after
//     every mutation that invalidates slots or calendars.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http

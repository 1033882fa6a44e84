// Package api is the AnyMoment API client.
//
// All domain calls share one request path: the session's current token
// is attached as a bearer credential, 5xx responses and transport
// errors are retried with bounded exponential backoff and jitter, a 401
// triggers exactly one forced token refresh and one retry, and every
// non-2xx status maps onto the closed error taxonomy (Error/Kind).
//
// The calendar, event, and agenda methods are thin wrappers; their real
// logic (recurrence parsing included) is server-side.
package api

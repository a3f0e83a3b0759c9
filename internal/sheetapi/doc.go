// Package sheetapi is the client for the spreadsheet-backed web app that holds
// the catalog and order history.
//
// # Requests
//
// Every call goes to a single /exec endpoint with an action query parameter.
// The client adds:
//
//   - cid: a fresh cid_<uuid> correlation id, logged on failure
//   - t: unix milliseconds on GET requests, to defeat intermediary caches
//   - correlation_id in POST bodies, which are JSON sent as text/plain so the
//     web app accepts them without a preflight
//
// Base URLs ending in /dev are rewritten to /exec, and query strings or
// fragments pasted from a browser are dropped.
//
// # Error Handling
//
// Failures are returned as *Error. Classification runs in this order:
//
//  1. HTML body or text/html content type: KindConfig (deployment not public)
//  2. non-2xx status: KindHTTP with the first 200 bytes of the body
//  3. body is not a JSON object: KindMalformed
//  4. "ok": false: KindApplication with the server message and request_id
//
// Typed actions add KindValidation when a required array is missing. Transport
// errors and timeouts are KindNetwork.
//
// # Retries
//
// Only KindNetwork and 5xx KindHTTP errors are retried, after
// RetryDelay*(attempt+1). SubmitOrder is never retried because the web app does
// not deduplicate orders.
package sheetapi

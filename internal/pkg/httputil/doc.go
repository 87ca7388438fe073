// Package httputil writes the CRM API's JSON bodies and reads its inputs.
//
// Successful calls return the resource (or a list envelope) as JSON. Failures
// return {"error": ..., "code": ..., "details": ...}: validation failures carry
// a field-to-message map under details, and 500s never expose the cause.
// Decode and IDParam answer 400 themselves and report false to the caller.
package httputil

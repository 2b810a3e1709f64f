// Package http is the network transport used by ws calls.
//
// It wraps resty over a tuned standard library client with additional features:
//   - Configurable timeouts
//   - Redirect handling
//   - Parameter encoding as query string, form body or JSON body
//   - Multipart form data with a named binary part
//   - Circuit breaking around any Transport
package http

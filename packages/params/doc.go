// Package params provides the ordered key/value container used as request
// parameters by ws calls.
//
// Parameters keep their insertion order, which is preserved when they are
// serialized either as a query string / form body (Values) or as a JSON
// object (MarshalJSON). Supported values are:
//   - strings, booleans, integers, floats and json.Number
//   - nested containers: map[string]any, []any, []string and *Params
//   - parsed JSON trees (json.JSON)
//   - binary payloads ([]byte or Binary)
package params

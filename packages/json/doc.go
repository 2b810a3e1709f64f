// Package json provides the dynamically typed JSON tree returned by ws calls.
//
// A JSON value is an immutable view over a parsed body backed by gjson. It is
// a tagged union: Kind reports which variant is held and the As* accessors
// return the value only when the kind matches, never coercing between kinds.
// Nested values are located with gjson dot paths ("data.items", "users.0").
package json

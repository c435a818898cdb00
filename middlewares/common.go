package middlewares

import "reflect"

// IsEmpty reports whether the config struct pointed to by i has only zero
// fields. Middleware constructors use it to return nil when a job section
// sets none of the middleware's options, so unconfigured middlewares never
// enter the chain.
func IsEmpty(i interface{}) bool {
	return reflect.ValueOf(i).Elem().IsZero()
}

// boolVal dereferences a *bool, treating nil as false.
func boolVal(b *bool) bool {
	return b != nil && *b
}

// BoolPtr returns a pointer to v. Config structs use *bool so an unset
// option is distinguishable from an explicit false.
func BoolPtr(v bool) *bool {
	return &v
}

// Package utils helps with the optional fields of backend records, which are pointers so
// that an absent value is omitted from JSON rather than sent as a zero.
package utils

// Value returns *v, or the zero value when v is absent.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}

// Text returns a pointer to s, or nil when s is blank so the field is left out.
func Text(s string) *string {
	if s == "" {
		return nil
	}
	return Ptr(s)
}

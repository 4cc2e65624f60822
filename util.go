package jsonmap

// BUFFER_SIZE is the default size of stream buffers.
const BUFFER_SIZE = 4096

// Ptr returns a pointer to v, handy for optional fields in literals.
func Ptr[T any](v T) *T { return &v }

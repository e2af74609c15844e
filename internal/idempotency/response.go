package idempotency

// HeaderPair is one response header as it was produced. Order matters,
// so headers are stored as a list rather than a map.
type HeaderPair struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// StoredResponse is the cached HTTP response for a processed request.
// Replaying it must be byte-identical to the original.
type StoredResponse struct {
	StatusCode int
	Headers    []HeaderPair
	Body       []byte
}

// Header returns the first value for a header name, or "".
func (r *StoredResponse) Header(name string) string {
	for _, h := range r.Headers {
		if h.Name == name {
			return string(h.Value)
		}
	}
	return ""
}

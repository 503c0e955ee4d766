package domain

// RawPage is the body of a fetched product page. It is owned by the fetch
// call that produced it and consumed by exactly one extraction.
type RawPage struct {
	URL        string
	StatusCode int
	Body       []byte
}

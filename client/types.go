package client

// RefKind tells whether a reference came from a link or an image.
type RefKind string

const (
	RefLink  RefKind = "link"
	RefImage RefKind = "image"
)

// Reference is an absolute URL found on a page
type Reference struct {
	Kind RefKind `json:"kind"`
	URL  string  `json:"url"`
}

// CheckResult is the outcome of probing one URL
type CheckResult struct {
	Kind       RefKind `json:"kind"`
	URL        string  `json:"url"`
	StatusCode int     `json:"status,omitempty"`
	Err        string  `json:"error,omitempty"`
}

// Broken reports whether the URL failed to resolve.
func (r CheckResult) Broken() bool { return r.Err != "" }

// PageReport collects every check made for one page
type PageReport struct {
	Page   string        `json:"page"`
	Checks []CheckResult `json:"checks"`
	Broken int           `json:"broken"`
}

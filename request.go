package bundlesync

import "net/url"

// Request selects a factory from a Bundle. Empty fields never match.
type Request struct {
	Scheme       string
	IsolationKey string
}

// RequestForURL builds a Request for u. isolationKey may be empty.
func RequestForURL(u *url.URL, isolationKey string) Request {
	req := Request{IsolationKey: isolationKey}
	if u != nil {
		req.Scheme = u.Scheme
	}
	return req
}

func (r Request) String() string {
	switch {
	case r.IsolationKey != "" && r.Scheme != "":
		return r.IsolationKey + "/" + r.Scheme
	case r.IsolationKey != "":
		return r.IsolationKey
	case r.Scheme != "":
		return r.Scheme
	default:
		return "default"
	}
}

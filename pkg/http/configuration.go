package http

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/buildbarn/bb-disttrace/pkg/util"
)

// ClientConfiguration holds the options that control how an outgoing
// HTTP connection to a reporter backend (e.g. a hosted observability
// ingest endpoint) is constructed.
type ClientConfiguration struct {
	// ProxyURL, if set, causes all requests to be routed through an
	// HTTP proxy.
	ProxyURL string
	// AddHeaders are added to every outgoing request, such as an
	// API key header required by the backend.
	AddHeaders map[string][]string
}

// NewRoundTripperFromConfiguration makes a new HTTP RoundTripper based
// on parameters provided in a ClientConfiguration.
func NewRoundTripperFromConfiguration(configuration *ClientConfiguration) (http.RoundTripper, error) {
	defaultTransport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: true,
	}
	var roundTripper http.RoundTripper = defaultTransport
	if configuration == nil {
		return roundTripper, nil
	}

	if configuration.ProxyURL != "" {
		parsedProxyURL, err := url.Parse(configuration.ProxyURL)
		if err != nil {
			return nil, util.StatusWrap(err, "Failed to parse proxy URL")
		}
		defaultTransport.Proxy = http.ProxyURL(parsedProxyURL)
	}

	if len(configuration.AddHeaders) > 0 {
		roundTripper = NewHeaderAddingRoundTripper(roundTripper, configuration.AddHeaders)
	}

	return roundTripper, nil
}

type headerAddingRoundTripper struct {
	base    http.RoundTripper
	headers map[string][]string
}

// NewHeaderAddingRoundTripper is a decorator for RoundTripper that adds
// additional HTTP header values to all outgoing requests, without
// mutating the request passed in by the caller.
func NewHeaderAddingRoundTripper(base http.RoundTripper, headers map[string][]string) http.RoundTripper {
	return &headerAddingRoundTripper{
		base:    base,
		headers: headers,
	}
}

func (rt *headerAddingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	newReq := *req
	newReq.Header = req.Header.Clone()
	for header, values := range rt.headers {
		for _, value := range values {
			newReq.Header.Add(header, value)
		}
	}
	return rt.base.RoundTrip(&newReq)
}

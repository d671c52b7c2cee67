package oauth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
)

// rewriteTransport intercepts requests to provider hosts and routes them
// to a local handler instead.
type rewriteTransport struct {
	hosts   []string
	handler http.Handler
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for _, host := range t.hosts {
		if strings.Contains(req.URL.Host, host) {
			recorder := httptest.NewRecorder()
			t.handler.ServeHTTP(recorder, req)
			return recorder.Result(), nil
		}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func clientFor(handler http.HandlerFunc, hosts ...string) *http.Client {
	return &http.Client{Transport: &rewriteTransport{hosts: hosts, handler: handler}}
}

package httpclient

import (
	"net/http"
	"time"
)

// sharedTransport is reused across all pooled clients so the LLM, embedding,
// rerank, and OCR clients draw from one connection pool instead of opening
// fresh TCP connections per client.
var sharedTransport = &http.Transport{
	MaxIdleConns:        20,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     120 * time.Second,
	DisableKeepAlives:   false,
}

// NewPooledClient creates an http.Client on the shared transport.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}

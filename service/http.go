package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// HTTPOptions configures the clients used to talk to imagery servers
type HTTPOptions struct {
	// InsecureSkipVerify disables the verification of the server certificates
	InsecureSkipVerify bool
	// IgnoreProxy ignores the proxy settings of the environment (HTTP_PROXY...)
	IgnoreProxy bool
	// Timeout of a whole request, including the reading of the body (0: no timeout)
	Timeout time.Duration
}

// DefaultHTTPOptions: certificates not verified, proxy ignored and 5 minutes per request
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		InsecureSkipVerify: true,
		IgnoreProxy:        true,
		Timeout:            5 * time.Minute,
	}
}

// NewHTTPClient creates an http.Client with the given options
func NewHTTPClient(opts HTTPOptions) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if opts.IgnoreProxy {
		transport.Proxy = nil
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{Transport: transport, Timeout: opts.Timeout}
}

// HTTPGetWithAuth gets the body of the url, returning an HTTPStatusError if the status is not 2xx
func HTTPGetWithAuth(ctx context.Context, client *http.Client, url, authName, authPswd, authToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	resp, err := doWithAuth(client, req, authName, authPswd, authToken)
	if err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(url, resp); err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	return io.ReadAll(resp.Body)
}

// HTTPHeadWithAuth returns the status code of a HEAD request on the url
func HTTPHeadWithAuth(ctx context.Context, client *http.Client, url, authName, authPswd, authToken string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "HEAD", url, nil)
	if err != nil {
		return 0, fmt.Errorf("HTTPHead: %w", err)
	}
	resp, err := doWithAuth(client, req, authName, authPswd, authToken)
	if err != nil {
		return 0, fmt.Errorf("HTTPHead: %w", err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func doWithAuth(client *http.Client, req *http.Request, authName, authPswd, authToken string) (*http.Response, error) {
	if authName != "" {
		req.SetBasicAuth(authName, authPswd)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

func checkStatus(url string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return HTTPStatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
}

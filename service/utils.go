package service

import (
	"context"
	"net/http"
	"time"
)

// GetBodyRetry: simple GET with N retries in case of temporary errors
func GetBodyRetry(ctx context.Context, client *http.Client, url string, nbRetries int) ([]byte, error) {
	var body []byte
	err := Retriable(ctx, func() error {
		var err error
		body, err = HTTPGetWithAuth(ctx, client, url, "", "", "")
		return err
	}, time.Second, nbRetries+1)
	return body, err
}

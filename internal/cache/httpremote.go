package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPRemoteStore is a minimal RemoteStore over a plain HTTP key/value
// service: GET /{key} to read, PUT /{key}?ttl=<seconds> to write, DELETE
// /{prefix}* to expire. It exists for CACHE_URL deployments where no
// richer client library is warranted (spec §6 calls the remote tier "any
// protocol"); production operators point CACHE_URL at whatever sidecar
// speaks this shape.
type HTTPRemoteStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRemoteStore builds a RemoteStore that talks to baseURL.
func NewHTTPRemoteStore(baseURL string) *HTTPRemoteStore {
	return &HTTPRemoteStore{baseURL: baseURL, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

func (h *HTTPRemoteStore) Get(key string) ([]byte, bool, error) {
	resp, err := h.httpClient.Get(h.baseURL + "/" + url.PathEscape(key))
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("cache remote GET %s: status %d", key, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

func (h *HTTPRemoteStore) Set(key string, value []byte, ttl time.Duration) error {
	req, err := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/%s?ttl=%d", h.baseURL, url.PathEscape(key), int(ttl.Seconds())),
		bytes.NewReader(value))
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("cache remote PUT %s: status %d", key, resp.StatusCode)
	}
	return nil
}

func (h *HTTPRemoteStore) Expire(keyPrefix string) error {
	req, err := http.NewRequest(http.MethodDelete, h.baseURL+"/"+url.PathEscape(keyPrefix)+"*", nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("cache remote DELETE %s: status %d", keyPrefix, resp.StatusCode)
	}
	return nil
}

package outbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
)

// collections maps entity types to REST collection paths on the remote.
var collections = map[string]string{
	"farmer":   "farmers",
	"supply":   "supply-entries",
	"payment":  "payments",
	"settings": "settings",
}

// HTTPRemote pushes items to a REST API:
//
//	create -> POST   {BaseURL}/{collection}
//	update -> PUT    {BaseURL}/{collection}/{id}
//	delete -> DELETE {BaseURL}/{collection}/{id}
//
// A 409 on create and a 404 on delete mean the remote already has the
// desired state and count as success.
type HTTPRemote struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *HTTPRemote) Push(ctx context.Context, item billing.SyncItem) error {
	collection, ok := collections[item.EntityType]
	if !ok {
		return &PermanentError{Err: fmt.Errorf("unknown entity type %q", item.EntityType)}
	}

	var method, url string
	var body io.Reader
	switch item.Operation {
	case billing.OpCreate:
		method, url = http.MethodPost, r.BaseURL+"/"+collection
		body = bytes.NewReader(item.Payload)
	case billing.OpUpdate:
		method, url = http.MethodPut, r.BaseURL+"/"+collection+"/"+item.EntityID
		body = bytes.NewReader(item.Payload)
	case billing.OpDelete:
		method, url = http.MethodDelete, r.BaseURL+"/"+collection+"/"+item.EntityID
	default:
		return &PermanentError{Err: fmt.Errorf("unknown operation %q", item.Operation)}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &PermanentError{Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Idempotency-Key", item.ID)
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict && item.Operation == billing.OpCreate:
		return nil
	case resp.StatusCode == http.StatusNotFound && item.Operation == billing.OpDelete:
		return nil
	}

	err = fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return &PermanentError{Err: err}
	}
	return err
}

func (r *HTTPRemote) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

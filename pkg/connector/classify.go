package connector

import (
	"fmt"
	"net/http"

	"github.com/repoflow/repoflow/pkg/transfer"
)

// classify maps a response code to the transfer error taxonomy. This is
// the single authority for both GET and PUT workers:
//
//	2xx                      -> success (nil)
//	404                      -> NotFoundError
//	401 / 403 / 407          -> AuthError
//	>= 300 otherwise         -> Error
func classify(kind transfer.Kind, url string, status int, statusText string) error {
	switch {
	case status == http.StatusNotFound:
		return &transfer.NotFoundError{Kind: kind, URL: url}
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusProxyAuthRequired:
		return &transfer.AuthError{Kind: kind, URL: url, Status: status}
	case status >= http.StatusMultipleChoices:
		return &transfer.Error{
			Kind: kind,
			URL:  url,
			Msg:  fmt.Sprintf("error code %d, %s", status, statusText),
		}
	}
	return nil
}

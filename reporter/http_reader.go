// Reader is a testing facility to drive and read a http reporter.

package reporter

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
)

type HttpReader struct {
	baseURL string
}

func NewHttpReader(serverIP string, serverPort string) *HttpReader {
	return NewHttpReaderURL("http://" + net.JoinHostPort(serverIP, serverPort))
}

// NewHttpReaderURL reads from an already formed base url, e.g. httptest.Server.URL.
func NewHttpReaderURL(baseURL string) *HttpReader {
	return &HttpReader{baseURL: strings.TrimRight(baseURL, "/")}
}

func (hr *HttpReader) GetHealth() (int, string, error) {
	return hr.do(http.MethodGet, ROUTE_HEALTH, nil)
}

func (hr *HttpReader) GetMetrics() (int, string, error) {
	return hr.do(http.MethodGet, ROUTE_METRICS, nil)
}

func (hr *HttpReader) ListTokens(owner string) (int, string, error) {
	route := ROUTE_TOKENS
	if owner != "" {
		route += "?owner=" + owner
	}
	return hr.do(http.MethodGet, route, nil)
}

func (hr *HttpReader) IssueToken(body any) (int, string, error) {
	return hr.do(http.MethodPost, ROUTE_TOKENS, body)
}

func (hr *HttpReader) GetToken(mint string) (int, string, error) {
	return hr.do(http.MethodGet, tokenRoute(ROUTE_TOKEN, mint), nil)
}

func (hr *HttpReader) MintMore(mint string, body any) (int, string, error) {
	return hr.do(http.MethodPost, tokenRoute(ROUTE_TOKEN_MINT, mint), body)
}

func (hr *HttpReader) Resume(mint string) (int, string, error) {
	return hr.do(http.MethodPost, tokenRoute(ROUTE_TOKEN_RESUME, mint), nil)
}

func (hr *HttpReader) GetTransactions(mint string) (int, string, error) {
	return hr.do(http.MethodGet, tokenRoute(ROUTE_TOKEN_TXS, mint), nil)
}

func tokenRoute(route string, mint string) string {
	return strings.Replace(route, ":mint", mint, 1)
}

func (hr *HttpReader) do(method string, route string, payload any) (int, string, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, "", err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, hr.baseURL+route, reqBody)
	if err != nil {
		return 0, "", err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	// Read the response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}

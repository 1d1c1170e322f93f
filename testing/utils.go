package e2etesting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type RequestOptions struct {
	Method      string
	Path        string
	Body        interface{}
	RawBody     io.Reader
	Headers     map[string]string
	Cookies     []*http.Cookie
	ContentType string
	FormData    url.Values
	Username    string
	Password    string
}

type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) GetJSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

func (r *Response) GetString() string {
	return string(r.Body)
}

func (r *Response) AssertStatus(t *testing.T, expectedStatus int) {
	t.Helper()
	require.Equal(t, expectedStatus, r.StatusCode, "unexpected status code. Response: %s", r.GetString())
}

func (r *Response) AssertContains(t *testing.T, expectedText string) {
	t.Helper()
	require.Contains(t, r.GetString(), expectedText, "response body does not contain expected text")
}

func (r *Response) AssertNotContains(t *testing.T, unexpectedText string) {
	t.Helper()
	require.NotContains(t, r.GetString(), unexpectedText, "response body contains unexpected text")
}

type HTTPClient struct {
	Client  *http.Client
	BaseURL string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		Client:  &http.Client{Timeout: 30 * time.Second},
		BaseURL: baseURL,
	}
}

func (c *HTTPClient) Get(path string) (*Response, error) {
	return c.Request(&RequestOptions{
		Method: http.MethodGet,
		Path:   path,
	})
}

func (c *HTTPClient) Post(path string, body interface{}) (*Response, error) {
	return c.Request(&RequestOptions{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
}

func (c *HTTPClient) PostForm(path string, data url.Values) (*Response, error) {
	return c.Request(&RequestOptions{
		Method:   http.MethodPost,
		Path:     path,
		FormData: data,
	})
}

// PostMultipart uploads fields plus one file under the "file" field.
func (c *HTTPClient) PostMultipart(opts *RequestOptions, fields map[string]string, filename string, content []byte) (*Response, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	opts.Method = http.MethodPost
	opts.RawBody = &body
	opts.ContentType = w.FormDataContentType()
	return c.Request(opts)
}

func (c *HTTPClient) Request(opts *RequestOptions) (*Response, error) {
	fullURL := c.BaseURL + opts.Path

	bodyReader := opts.RawBody
	contentType := opts.ContentType

	if opts.FormData != nil {
		bodyReader = strings.NewReader(opts.FormData.Encode())
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}
	} else if opts.Body != nil {
		jsonBody, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
		if contentType == "" {
			contentType = "application/json"
		}
	}

	req, err := http.NewRequest(opts.Method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range opts.Cookies {
		req.AddCookie(cookie)
	}
	if opts.Username != "" || opts.Password != "" {
		req.SetBasicAuth(opts.Username, opts.Password)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Response: resp,
		Body:     body,
	}, nil
}

func (c *HTTPClient) WithCookieJar() *HTTPClient {
	jar, _ := cookiejar.New(nil)
	return &HTTPClient{
		Client: &http.Client{
			Timeout: c.Client.Timeout,
			Jar:     jar,
		},
		BaseURL: c.BaseURL,
	}
}

package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a *Store backed by an in-memory fake HTTP transport.
// Only the subset of S3 operations required by the blob store contract is implemented.
func NewMockForTests() *Store {
	rt := &mockRoundTripper{state: make(map[string]mockObj)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return newStore(client, "mock-bucket")
}

type mockRoundTripper struct {
	mu    sync.Mutex
	state map[string]mockObj
}

type mockObj struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead:
		if st, ok := m.state[key]; ok {
			return emptyResponse(http.StatusOK, objectHeaders(st)), nil
		}
		return emptyResponse(http.StatusNotFound, http.Header{}), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") || req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			if dec, ok := decodeChunked(body); ok {
				body = dec
			}
		}
		md := map[string]string{}
		for name, values := range req.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") && len(values) > 0 {
				md[strings.TrimPrefix(strings.ToLower(name), "x-amz-meta-")] = values[0]
			}
		}
		m.state[key] = mockObj{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		return emptyResponse(http.StatusOK, http.Header{"ETag": {"\"etag\""}}), nil
	case http.MethodGet:
		if st, ok := m.state[key]; ok {
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(st.body)), Header: objectHeaders(st)}, nil
		}
		return emptyResponse(http.StatusNotFound, http.Header{}), nil
	case http.MethodDelete:
		delete(m.state, key)
		return emptyResponse(http.StatusNoContent, http.Header{}), nil
	}
	return emptyResponse(http.StatusNotImplemented, http.Header{}), nil
}

func (m *mockRoundTripper) list(prefix string) *http.Response {
	var keys []string
	for k := range m.state {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?><ListBucketResult><IsTruncated>false</IsTruncated>")
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.state[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(b.String())), Header: http.Header{"Content-Type": {"application/xml"}}}
}

func objectHeaders(st mockObj) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(st.body))},
		"Content-Type":   {st.contentType},
		"ETag":           {"\"etag123\""},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
	for k, v := range st.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func emptyResponse(status int, h http.Header) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: h}
}

// decodeChunked decodes an aws-chunked payload: repeated "<hex>[;ext]\r\n<data>\r\n"
// frames terminated by a zero-length frame and optional trailers.
func decodeChunked(b []byte) ([]byte, bool) {
	var out []byte
	for {
		idx := bytes.Index(b, []byte("\r\n"))
		if idx == -1 {
			return nil, false
		}
		header := string(b[:idx])
		if semi := strings.IndexByte(header, ';'); semi != -1 {
			header = header[:semi]
		}
		n, err := strconv.ParseInt(header, 16, 64)
		if err != nil || n < 0 {
			return nil, false
		}
		b = b[idx+2:]
		if n == 0 {
			return out, true
		}
		if int64(len(b)) < n+2 {
			return nil, false
		}
		out = append(out, b[:n]...)
		b = b[n+2:]
	}
}

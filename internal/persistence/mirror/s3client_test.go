package mirror

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// putRoundTripper records PUTs against a fake path-style S3 endpoint.
type putRoundTripper struct {
	mu    sync.Mutex
	state map[string]putObj
}

type putObj struct {
	body        []byte
	contentType string
}

func (m *putRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPut {
		return &http.Response{StatusCode: 501, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	body, _ := io.ReadAll(req.Body)
	key := strings.TrimPrefix(req.URL.Path, "/test-bucket/")
	m.mu.Lock()
	m.state[key] = putObj{body: body, contentType: req.Header.Get("Content-Type")}
	m.mu.Unlock()
	return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {`"etag"`}}}, nil
}

func newMockClient(t *testing.T, rt *putRoundTripper) *Client {
	t.Helper()
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	if err != nil {
		t.Fatalf("cfg: %v", err)
	}
	client := awsS3.NewFromConfig(cfg, func(o *awsS3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
	})
	return &Client{s3: client, bucket: "test-bucket"}
}

func TestClientPutFile(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "week-000002.json")
	if err := os.WriteFile(local, []byte(`{"week":2}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rt := &putRoundTripper{state: map[string]putObj{}}
	c := newMockClient(t, rt)

	if err := c.PutFile(context.Background(), "weeks/week-000002.json", local); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	rt.mu.Lock()
	obj, ok := rt.state["weeks/week-000002.json"]
	rt.mu.Unlock()
	if !ok {
		t.Fatalf("object not stored; have %v", keysOf(rt))
	}
	// The SDK may frame the payload, so look for the content rather than
	// comparing bytes.
	if !strings.Contains(string(obj.body), `{"week":2}`) {
		t.Fatalf("body does not contain payload: %q", string(obj.body))
	}
	if obj.contentType != "application/json" {
		t.Fatalf("content type=%q want application/json", obj.contentType)
	}
}

func TestClientPutFileRejectsBadInput(t *testing.T) {
	rt := &putRoundTripper{state: map[string]putObj{}}
	c := newMockClient(t, rt)

	if err := c.PutFile(context.Background(), "..", "whatever"); err == nil {
		t.Fatalf("expected error for empty normalized key")
	}
	if err := c.PutFile(context.Background(), "ok.json", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing local file")
	}
	if err := c.PutFile(context.Background(), "dir.json", t.TempDir()); err == nil {
		t.Fatalf("expected error for directory path")
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(context.Background(), ClientConfig{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestNormalizeObjectKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"journal/days-1.jsonl.zst", "journal/days-1.jsonl.zst"},
		{"/leading/slash.json", "leading/slash.json"},
		{`back\slash.json`, "back/slash.json"},
		{"a/./b.json", "a/b.json"},
		{"../escape.json", "escape.json"}, // rooted Clean neutralizes the ..
		{"..", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := normalizeObjectKey(c.in); got != c.want {
			t.Fatalf("normalizeObjectKey(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func keysOf(rt *putRoundTripper) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var keys []string
	for k := range rt.state {
		keys = append(keys, k)
	}
	return keys
}

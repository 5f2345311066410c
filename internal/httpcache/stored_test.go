package httpcache

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoredResponseKeepsTextReadable(t *testing.T) {
	header := http.Header{
		"Content-Type":      {"application/json"},
		"Transfer-Encoding": {"chunked"},
		"Content-Length":    {"11"},
		"x-rate-limit":      {"150"},
	}
	stored := NewStoredResponse("http://api.example.com/a", http.StatusOK, header, []byte(`{"a":"é"}`), time.Unix(0, 0))

	assert.Equal(t, `{"a":"é"}`, stored.Body)
	assert.Empty(t, stored.Encoding)
	assert.Equal(t, "application/json", stored.Header.Get("Content-Type"))
	assert.Equal(t, "150", stored.Header.Get("X-Rate-Limit"))
	assert.Empty(t, stored.Header.Values("Transfer-Encoding"))
	assert.Empty(t, stored.Header.Values("Content-Length"))
}

func TestStoredResponseEncodesBinaryBodies(t *testing.T) {
	body := []byte{0xff, 0xfe, 0x00, 0x01}
	stored := NewStoredResponse("http://api.example.com/b", http.StatusOK, nil, body, time.Now())
	assert.Equal(t, encodingBase64, stored.Encoding)

	decoded, err := stored.Bytes()
	require.NoError(t, err)
	assert.Equal(t, body, decoded)
}

func TestStoredResponseRejectsUnknownEncoding(t *testing.T) {
	_, err := StoredResponse{Body: "x", Encoding: "gzip"}.Bytes()
	assert.Error(t, err)
}

func TestBinaryBodySurvivesCache(t *testing.T) {
	env := newTestEnv(t, nil)
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	env.upstream.handler = func(*http.Request) (*http.Response, error) {
		resp := textResponse(http.StatusOK, "")
		resp.Body = nopBody(payload)
		return resp, nil
	}

	_, err := env.engine.Do(newGet(t, timelineURL))
	require.NoError(t, err)
	resp, err := env.engine.Do(newGet(t, timelineURL))
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, resp.Outcome)
	assert.Equal(t, payload, resp.Body)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

package source

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresSearchURL(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
}

func TestPayloadFromResponse(t *testing.T) {
	t.Parallel()
	resp := response{
		status: http.StatusOK,
		body:   []byte("zip-bytes"),
		headers: http.Header{
			"Content-Type":        []string{"application/zip"},
			"Content-Disposition": []string{`attachment; filename="DCE_123.zip";`},
		},
	}

	payload, err := payloadFromResponse("https://example.test/dl", resp)
	require.NoError(t, err)
	require.Equal(t, "DCE_123.zip", payload.FileName)
	require.Equal(t, "zip-bytes", string(payload.Data))
}

func TestPayloadFromResponseRejectsHTML(t *testing.T) {
	t.Parallel()
	resp := response{
		status:  http.StatusOK,
		body:    []byte("<html>error page</html>"),
		headers: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
	}

	_, err := payloadFromResponse("https://example.test/dl", resp)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected content type")
}

func TestPayloadFromResponseRejectsEmptyBody(t *testing.T) {
	t.Parallel()
	resp := response{
		status: http.StatusOK,
		headers: http.Header{
			"Content-Type":        []string{"application/zip"},
			"Content-Disposition": []string{`attachment; filename="DCE_123.zip";`},
		},
	}

	_, err := payloadFromResponse("https://example.test/dl", resp)
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty payload")
}

func TestPayloadFromResponseRequiresFileName(t *testing.T) {
	t.Parallel()
	resp := response{
		status:  http.StatusOK,
		body:    []byte("zip-bytes"),
		headers: http.Header{"Content-Type": []string{"application/zip"}},
	}

	_, err := payloadFromResponse("https://example.test/dl", resp)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no attachment file name")
}

func TestSameLinks(t *testing.T) {
	t.Parallel()
	require.True(t, sameLinks([]string{"a", "b"}, []string{"a", "b"}))
	require.False(t, sameLinks([]string{"a", "b"}, []string{"b", "a"}))
	require.False(t, sameLinks([]string{"a"}, []string{"a", "b"}))
	require.True(t, sameLinks(nil, nil))
}

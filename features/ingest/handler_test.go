package ingest

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func multipartBody(t *testing.T, domain, format string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if domain != "" {
		require.NoError(t, mw.WriteField("domain", domain))
	}
	if format != "" {
		require.NoError(t, mw.WriteField("format", format))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newSubmitRecorder(t *testing.T, h *Handler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Submit(rec, req)
	return rec
}

func TestSubmit_Accepted(t *testing.T) {
	svc, deps := newTestService(t)
	allowAnyPipelineCalls(deps)
	h := NewHandler(svc, 500<<20)

	body, ct := multipartBody(t, "SPACE", "xml", map[string][]byte{
		"report.xml": []byte(serviceXML),
	})
	rec := newSubmitRecorder(t, h, body, ct)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Data SubmitResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.DocumentIDs, 1)
	assert.Equal(t, 1, resp.Data.Count)
	assert.Equal(t, "SPACE", resp.Data.Domain)
}

func TestSubmit_MissingDomain(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, 500<<20)

	body, ct := multipartBody(t, "", "", map[string][]byte{
		"report.xml": []byte(serviceXML),
	})
	rec := newSubmitRecorder(t, h, body, ct)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "domain is required")
}

func TestSubmit_NoFiles(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, 500<<20)

	body, ct := multipartBody(t, "SPACE", "", nil)
	rec := newSubmitRecorder(t, h, body, ct)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one file")
}

func TestSubmit_ValidationErrorIsBadRequest(t *testing.T) {
	svc, deps := newTestService(t)
	h := NewHandler(svc, 500<<20)

	body, ct := multipartBody(t, "SPACE", "", map[string][]byte{
		"tool.exe": []byte("binary"),
	})
	rec := newSubmitRecorder(t, h, body, ct)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error map[string]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Error["code"])
	deps.repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestSubmit_OversizedBodyRejected(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, 256) // tiny cap to trip MaxBytesReader

	body, ct := multipartBody(t, "SPACE", "", map[string][]byte{
		"report.xml": bytes.Repeat([]byte("x"), 4096),
	})
	rec := newSubmitRecorder(t, h, body, ct)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds")
}

func TestSubmit_MalformedMultipart(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, 500<<20)

	rec := newSubmitRecorder(t, h, bytes.NewBufferString("not multipart"), "multipart/form-data; boundary=xyz")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "BAD_REQUEST")
}

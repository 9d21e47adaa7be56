package util

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeForm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		want        map[string]string
		wantErr     error
	}{
		{
			name:        "urlencoded",
			contentType: "application/x-www-form-urlencoded",
			body:        "name=Ada&email=ada%40example.com",
			want:        map[string]string{"name": "Ada", "email": "ada@example.com"},
		},
		{
			name:        "json with charset",
			contentType: "application/json; charset=utf-8",
			body:        `{"name":"Ada","age":36,"admin":false,"note":null}`,
			want:        map[string]string{"name": "Ada", "age": "36", "admin": "false"},
		},
		{
			name:        "json nested object",
			contentType: "application/json",
			body:        `{"name":{"first":"Ada"}}`,
			wantErr:     ErrInvalidInput,
		},
		{
			name:        "json malformed",
			contentType: "application/json",
			body:        `{"name":`,
			wantErr:     ErrInvalidInput,
		},
		{
			name:        "json too large",
			contentType: "application/json",
			body:        `{"name":"` + strings.Repeat("a", 64) + `"}`,
			wantErr:     ErrPayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set(HeaderContentType, tt.contentType)
			if tt.wantErr == ErrPayloadTooLarge {
				req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, 16)
			}

			got, err := DecodeForm(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeForm_Multipart(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Ada"))
	require.NoError(t, mw.WriteField("code", "en-GB"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(HeaderContentType, mw.FormDataContentType())

	got, err := DecodeForm(req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Ada", "code": "en-GB"}, got)
}

type signup struct {
	Name  string `json:"name" validate:"required,max=8"`
	Email string `json:"email" validate:"required,email"`
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateStruct(signup{Name: "Ada", Email: "ada@example.com"}))

	err := ValidateStruct(signup{Name: "Augusta Ada", Email: "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, StatusFor(err))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{
		"name":  "must be at most 8 characters",
		"email": "must be a valid email address",
	}, verr.Fields)
	assert.Equal(t, "email must be a valid email address; name must be at most 8 characters", verr.Summary())
}

func TestStatusFor_PayloadTooLarge(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusFor(WrapError(ErrPayloadTooLarge, "reading body")))
}

package shared

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,max=3"`
	Action string   `json:"action" validate:"required,oneof=delete archive"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		errText string
	}{
		{name: "valid", body: `{"ids":["a"],"action":"delete"}`},
		{name: "empty body", body: "", wantErr: ErrEmptyBody},
		{name: "malformed", body: `{"ids":["a"],}`, errText: "invalid JSON body"},
		{name: "unknown field", body: `{"ids":["a"],"colour":"red"}`, errText: "unknown field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var got sampleRequest
			err := DecodeJSON(httptest.NewRecorder(), req, &got)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
				assert.Equal(t, []string{"a"}, got.IDs)
			}
		})
	}
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	body := `{"action":"` + strings.Repeat("x", MaxJSONBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var got sampleRequest
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &got))
}

type selfValidating struct{ ok bool }

func (s selfValidating) Validate() error {
	if !s.ok {
		return assert.AnError
	}
	return nil
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(&sampleRequest{IDs: []string{"a"}, Action: "archive"}))

	err := ValidateRequest(&sampleRequest{IDs: []string{"a"}, Action: "shred"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Action", verrs[0].Field())
	assert.Equal(t, "oneof", verrs[0].Tag())

	assert.ErrorIs(t, ValidateRequest(selfValidating{}), assert.AnError)
	assert.NoError(t, ValidateRequest(selfValidating{ok: true}))
}

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v and verifies success
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// AssertErrorResponse verifies an {error, message} body with the expected
// status and error code
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	AssertJSONResponse(t, resp, &body)
	assert.Equal(t, expectedCode, body.Error, "error code mismatch")
	assert.NotEmpty(t, body.Message, "error message missing")
}

// AssertJournalState verifies the persisted cursor fields of a state body
func AssertJournalState(t *testing.T, state map[string]interface{}, activeStep int, todo bool) {
	t.Helper()
	require.NotNil(t, state, "state missing")
	assert.EqualValues(t, activeStep, state["activeStep"], "unexpected activeStep")
	assert.Equal(t, todo, state["todo"], "unexpected todo")
}

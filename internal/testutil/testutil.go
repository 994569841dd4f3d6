// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertNear fails the test when got and want differ by more than tol.
func AssertNear(t testing.TB, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %.9f, want %.9f (±%g)", name, got, want, tol)
	}
}

// UUDF builds a +UUDF datagram for anchorID with the given angles.
func UUDF(anchorID string, azimuth, elevation int) []byte {
	return []byte("+UUDF:6C1DEBA41680,-42," + strconv.Itoa(azimuth) + "," + strconv.Itoa(elevation) + ",-44,37,\"" + anchorID + "\",\"\",15724,1\r\n")
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

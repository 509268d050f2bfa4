package response

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"id": "42"})

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"id":"42"}}`, rec.Body.String())
}

func TestPartial(t *testing.T) {
	rec := httptest.NewRecorder()
	Partial(rec, map[string]int{"deleted": 2}, "permissions not applied")

	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"deleted":2},"warning":"permissions not applied"}`, rec.Body.String())
}

func TestOpaqueDenials(t *testing.T) {
	rec := httptest.NewRecorder()
	Unauthorized(rec)
	assert.Equal(t, 401, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"unauthorized"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Forbidden(rec)
	assert.Equal(t, 403, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"forbidden"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	InternalError(rec)
	assert.Equal(t, 500, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"request failed"}`, rec.Body.String())
}

func TestBadRequestCarriesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	BadRequest(rec, "invalid image type")

	assert.Equal(t, 400, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"invalid image type"}`, rec.Body.String())
}

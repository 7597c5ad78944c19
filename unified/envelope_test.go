package unified

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelopeShapes(t *testing.T) {
	cases := []struct {
		body  string
		shape Shape
		items int
	}{
		{`{"data":[{"id":1},{"id":2}]}`, ShapeDataList, 2},
		{`{"data":[]}`, ShapeDataList, 0},
		{`{"data":{"id":1}}`, ShapeDataObject, 1},
		{`[{"id":1}]`, ShapeBareList, 1},
		{`{"statusCode":403,"error":"Forbidden","message":"nope"}`, ShapeErrorObject, 0},
		{`{"statusCode":200,"ok":true}`, ShapeUnknown, 0},
		{`{"data":null}`, ShapeUnknown, 0},
		{`{"name":"A"}`, ShapeUnknown, 0},
		{`"text"`, ShapeUnknown, 0},
		{``, ShapeUnknown, 0},
		{`{broken`, ShapeUnknown, 0},
	}
	for _, tc := range cases {
		env := DecodeEnvelope([]byte(tc.body))
		if env.Shape != tc.shape {
			t.Fatalf("DecodeEnvelope(%s) shape = %s, want %s", tc.body, env.Shape, tc.shape)
		}
		if len(env.Items) != tc.items {
			t.Fatalf("DecodeEnvelope(%s) items = %d, want %d", tc.body, len(env.Items), tc.items)
		}
	}
}

func TestNormalizeKeepsListOrder(t *testing.T) {
	items, err := Normalize(&Response{StatusCode: 200, Body: []byte(`{"data":[{"id":3},{"id":1},{"id":2}]}`)})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.JSONEq(t, `{"id":3}`, string(items[0]))
	assert.JSONEq(t, `{"id":1}`, string(items[1]))
	assert.JSONEq(t, `{"id":2}`, string(items[2]))
}

func TestNormalizeWrapsSingleObject(t *testing.T) {
	items, err := Normalize(&Response{StatusCode: 200, Body: []byte(`{"data":{"id":"emp-1","name":"A"}}`)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"id":"emp-1","name":"A"}`, string(items[0]))
}

func TestNormalizeBareList(t *testing.T) {
	items, err := Normalize(&Response{StatusCode: 200, Body: []byte(`[{"id":1},{"id":2}]`)})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestNormalizeFailedStatus(t *testing.T) {
	cases := []struct {
		status  int
		body    string
		message string
	}{
		{401, `{"data":[{"id":1}]}`, "Unauthorized"},
		{401, `{"message":"token expired"}`, "Unauthorized"},
		{404, `{"message":"connection not found"}`, "connection not found"},
		{500, `oops`, "Internal Server Error"},
		{502, `{"error":"Bad upstream"}`, "Bad upstream"},
	}
	for _, tc := range cases {
		items, err := Normalize(&Response{StatusCode: tc.status, Body: []byte(tc.body)})
		if items != nil {
			t.Fatalf("status %d: expected no items, got %d", tc.status, len(items))
		}
		var ue *Error
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, KindUpstream, ue.Kind)
		assert.Equal(t, tc.status, ue.Status)
		assert.Equal(t, tc.message, ue.Message)
	}
}

func TestNormalizeErrorEnvelopeInSuccessBody(t *testing.T) {
	_, err := Normalize(&Response{StatusCode: 200, Body: []byte(`{"statusCode":401,"error":"Unauthorized","message":"bad key"}`)})
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindUpstream, ue.Kind)
	assert.Equal(t, 401, ue.Status)
	assert.Equal(t, "API Error: Unauthorized - bad key", ue.Message)
}

func TestNormalizeUnrecognizedShape(t *testing.T) {
	_, err := Normalize(&Response{StatusCode: 200, Body: []byte(`{"results":[],"cursor":"x"}`)})
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindUnrecognizedShape, ue.Kind)
	assert.Equal(t, "no usable data", ue.Message)
	assert.Equal(t, []string{"cursor", "results"}, ue.ObservedKeys)
	assert.Zero(t, ue.Status)

	body := NewResult(nil, err).Body("items")
	assert.NotContains(t, body, "status")
	assert.Equal(t, KindUnrecognizedShape, body["error_kind"])
}

func TestResultBody(t *testing.T) {
	ok := NewResult(nil, nil)
	body, err := json.Marshal(ok.Body("employees"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"employees":[]}`, string(body))

	failed := NewResult(nil, &Error{Kind: KindUpstream, Status: 401, Message: "Unauthorized"})
	body, err = json.Marshal(failed.Body("employees"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"message":"Unauthorized","error_kind":"upstream","status":401}`, string(body))
}

func TestKindOf(t *testing.T) {
	err := notFound("missing %s", "a@x.com")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, ErrorKind(""), KindOf(assert.AnError))
	assert.False(t, IsKind(nil, KindNotFound))
}

package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
)

func TestRequestWireFormat(t *testing.T) {
	req, err := NewRequest(ProbeFetch, int64(150))
	require.NoError(t, err)

	data, err := EncodeRequest(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"operation":"PROBE_FETCH","parameters":[150]}`, string(data))

	decoded, err := DecodeRequest(data)
	require.NoError(t, err)
	var ts int64
	require.NoError(t, decoded.Param(0, &ts))
	assert.Equal(t, int64(150), ts)
}

func TestRequestWithoutParametersEncodesEmptyList(t *testing.T) {
	data, err := EncodeRequest(Request{Operation: ProbeCount})
	require.NoError(t, err)
	assert.JSONEq(t, `{"operation":"PROBE_COUNT","parameters":[]}`, string(data))
}

func TestDecodeRequestRejectsBadShapes(t *testing.T) {
	for _, payload := range []string{`not json`, `{"parameters":[]}`, `[]`} {
		_, err := DecodeRequest([]byte(payload))
		assert.ErrorIs(t, err, errspkg.ErrSerialization, payload)
	}
}

func TestParamOutOfRange(t *testing.T) {
	req, err := NewRequest(NamespaceGetVariable, "x")
	require.NoError(t, err)

	var v string
	assert.ErrorIs(t, req.Param(1, &v), errspkg.ErrSerialization)
	assert.ErrorIs(t, req.Param(0, new(int)), errspkg.ErrSerialization)
}

func TestNullResponse(t *testing.T) {
	data, err := EncodeResponse(Response{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":null}`, string(data))

	resp, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.True(t, resp.IsNull())

	out := 7
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, 7, out)
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(assert.AnError)
	data, err := EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.ErrorIs(t, decoded.Err(), errspkg.ErrRemote)
	assert.ErrorIs(t, decoded.Decode(new(int)), errspkg.ErrRemote)
}

func TestOperationSets(t *testing.T) {
	for _, op := range append(ProbeOperations(), NamespaceOperations()...) {
		assert.True(t, op.Valid(), op)
	}
	assert.False(t, Operation("PROBE_EXPLODE").Valid())
	assert.Len(t, ProbeOperations(), 5)
	assert.Len(t, NamespaceOperations(), 2)
}

func TestDispatcher(t *testing.T) {
	d, err := NewDispatcher(map[Operation]HandlerFunc{
		ProbeCount: func(context.Context, Request) (any, error) { return 3, nil },
	})
	require.NoError(t, err)

	got, err := d.Handle(context.Background(), Request{Operation: ProbeCount})
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	_, err = d.Handle(context.Background(), Request{Operation: ProbeFetch})
	assert.ErrorIs(t, err, errspkg.ErrUnknownOperation)
	assert.Equal(t, []Operation{ProbeCount}, d.Operations())
}

func TestNewDispatcherValidates(t *testing.T) {
	_, err := NewDispatcher(map[Operation]HandlerFunc{"BOGUS": func(context.Context, Request) (any, error) { return nil, nil }})
	assert.ErrorIs(t, err, errspkg.ErrUnknownOperation)

	_, err = NewDispatcher(map[Operation]HandlerFunc{ProbeClean: nil})
	assert.ErrorIs(t, err, errspkg.ErrHandlerRequired)
}

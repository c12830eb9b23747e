package procgroup

import (
	"fmt"
	"testing"

	"github.com/core-tools/hsu-procgroup/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupHandle_RejectsInvalidValues(t *testing.T) {
	api := newFakeNativeAPI()
	logger := &testLogger{}

	tests := []struct {
		name  string
		value groupHandleValue
	}{
		{"zero", 0},
		{"all_bits_set", ^groupHandleValue(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle, err := newGroupHandle(tt.value, "", api, logger)
			assert.Nil(t, handle)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestGroupHandle_ValueWhileLive(t *testing.T) {
	api := newFakeNativeAPI()
	handle, err := newGroupHandle(0x1234, "test", api, &testLogger{})
	require.NoError(t, err)

	value, err := handle.Value()
	assert.NoError(t, err)
	assert.Equal(t, groupHandleValue(0x1234), value)
	assert.False(t, handle.Disposed())
}

func TestGroupHandle_CloseIsIdempotent(t *testing.T) {
	api := newFakeNativeAPI()
	value, err := api.CreateGroup("")
	require.NoError(t, err)

	handle, err := newGroupHandle(value, "", api, &testLogger{})
	require.NoError(t, err)

	assert.NoError(t, handle.Close())
	assert.True(t, handle.Disposed())

	// Second close is a no-op, the native handle is released exactly once
	assert.NoError(t, handle.Close())
	assert.Equal(t, []groupHandleValue{value}, api.closedHandles())

	_, err = handle.Value()
	assert.True(t, errors.IsInvalidStateError(err))
}

func TestGroupHandle_CloseFailureStillInvalidates(t *testing.T) {
	api := newFakeNativeAPI()
	value, err := api.CreateGroup("")
	require.NoError(t, err)
	api.failClose = fmt.Errorf("release failed")

	handle, err := newGroupHandle(value, "", api, &testLogger{})
	require.NoError(t, err)

	// The release failure is reported, not returned; a leaked kernel
	// object is preferable to a handle usable twice
	assert.NoError(t, handle.Close())
	assert.True(t, handle.Disposed())

	_, err = handle.Value()
	assert.True(t, errors.IsInvalidStateError(err))

	// Retrying does not re-issue the native close
	assert.NoError(t, handle.Close())
	assert.Len(t, api.closedHandles(), 1)
}

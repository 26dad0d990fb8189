package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomDataEmptyIsNull(t *testing.T) {
	v, err := CustomData{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var d CustomData
	require.NoError(t, d.Scan(nil))
	assert.Nil(t, d)

	require.NoError(t, d.Scan([]byte(`{}`)))
	assert.Nil(t, d)
}

func TestCustomDataScan(t *testing.T) {
	var d CustomData
	require.NoError(t, d.Scan(`{"discount":"15"}`))
	assert.Equal(t, CustomData{"discount": "15"}, d)

	assert.Error(t, d.Scan(42))
	assert.Error(t, d.Scan([]byte(`{"nested":{"a":1}}`)))
}

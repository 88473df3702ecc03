package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

type watchInput struct {
	Address  string `validate:"required,max=64"`
	Contract string `validate:"omitempty,eth_addr"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(watchInput{Address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"}))
	require.NoError(t, Struct(watchInput{
		Address:  "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		Contract: "0x83c5541a6c8d2dbad642f385d8d06ca9b6c731ee",
	}))

	err := Struct(watchInput{Contract: "0x1234"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
	assert.Contains(t, err.Error(), "watchInput.Address")
	assert.Contains(t, err.Error(), "watchInput.Contract")
}

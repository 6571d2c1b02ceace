package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSensitive_Recursive(t *testing.T) {
	in := map[string]any{
		"tenantId": "t-1",
		"Email":    "a@b.c",
		"profile": map[string]any{
			"password": "hunter2",
			"name":     "Ann",
			"contacts": []any{
				map[string]any{"phoneNumber": "555", "label": "home"},
			},
		},
		"apiKey": "k",
	}

	out := MaskSensitive(in).(map[string]any)

	assert.Equal(t, "t-1", out["tenantId"])
	assert.Equal(t, MaskedValue, out["Email"])
	assert.Equal(t, MaskedValue, out["apiKey"])
	profile := out["profile"].(map[string]any)
	assert.Equal(t, MaskedValue, profile["password"])
	assert.Equal(t, "Ann", profile["name"])
	contact := profile["contacts"].([]any)[0].(map[string]any)
	assert.Equal(t, MaskedValue, contact["phoneNumber"])
	assert.Equal(t, "home", contact["label"])

	// input untouched
	assert.Equal(t, "a@b.c", in["Email"])
	assert.Equal(t, "hunter2", in["profile"].(map[string]any)["password"])
}

func TestMaskMap_Nil(t *testing.T) {
	assert.Nil(t, MaskMap(nil))
	assert.Equal(t, 42, MaskSensitive(42))
}

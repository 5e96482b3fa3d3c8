package qsapi

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemTypeValidate(t *testing.T) {
	assert.NoError(t, ItemTypePlan.Validate())
	assert.NoError(t, ItemTypeInstruction.Validate())
	assert.NoError(t, ItemTypeFunction.Validate())

	err := ItemType("recipe").Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown item type")
}

func TestItemValidate(t *testing.T) {
	t.Run("valid plan", func(t *testing.T) {
		item := NewPlan("count", []any{[]any{"det1"}}, map[string]any{"num": 5})
		assert.NoError(t, item.Validate())
	})

	t.Run("rejects empty name", func(t *testing.T) {
		item := NewPlan("", nil, nil)
		err := item.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name cannot be empty")
	})

	t.Run("rejects invalid item type", func(t *testing.T) {
		item := &Item{ItemType: "recipe", Name: "count"}
		assert.Error(t, item.Validate())
	})

	t.Run("rejects malformed UID", func(t *testing.T) {
		item := NewPlan("count", nil, nil)
		item.ItemUID = "not-a-uuid"
		err := item.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid item UID")
	})

	t.Run("accepts server-assigned UID", func(t *testing.T) {
		item := NewPlan("count", nil, nil)
		item.ItemUID = uuid.New().String()
		assert.NoError(t, item.Validate())
	})
}

func TestItemWireConversion(t *testing.T) {
	item := NewPlan("scan", []any{"motor", -1.0, 1.0}, map[string]any{"num": 11})
	item.Meta = map[string]any{"sample": "A1"}

	m, err := item.ToMap()
	require.NoError(t, err)
	assert.Equal(t, "plan", m["item_type"])
	assert.Equal(t, "scan", m["name"])

	// Empty server-assigned fields must not travel on the wire
	_, found := m["item_uid"]
	assert.False(t, found)
	_, found = m["result"]
	assert.False(t, found)

	back, err := ItemFromMap(m)
	require.NoError(t, err)
	assert.Equal(t, item.Name, back.Name)
	assert.Equal(t, item.ItemType, back.ItemType)
	assert.Equal(t, item.Meta, back.Meta)
}

func TestItemFromMapDropsUnknownFields(t *testing.T) {
	m := map[string]any{
		"item_type":      "plan",
		"name":           "count",
		"item_uid":       uuid.New().String(),
		"future_field":   "ignored",
		"another_future": 42,
	}

	item, err := ItemFromMap(m)
	require.NoError(t, err)
	assert.Equal(t, "count", item.Name)
	assert.Equal(t, m["item_uid"], item.ItemUID)
}

func TestNewInstruction(t *testing.T) {
	item := NewInstruction("queue_stop")
	assert.Equal(t, ItemTypeInstruction, item.ItemType)
	assert.NoError(t, item.Validate())
}

func TestNewFunction(t *testing.T) {
	item := NewFunction("clear_detectors", nil, nil)
	assert.Equal(t, ItemTypeFunction, item.ItemType)
	assert.NoError(t, item.Validate())
}

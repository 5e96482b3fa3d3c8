package qsapi

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ItemType identifies the kind of a queue item. The manager recognizes three
// kinds: plans are executed by the run engine, instructions are interpreted by
// the manager itself (e.g. queue_stop), and functions are called directly in
// the worker namespace.
type ItemType string

const (
	ItemTypePlan        ItemType = "plan"
	ItemTypeInstruction ItemType = "instruction"
	ItemTypeFunction    ItemType = "function"
)

// Validate checks if the ItemType is a valid enum value.
func (t ItemType) Validate() error {
	switch t {
	case ItemTypePlan, ItemTypeInstruction, ItemTypeFunction:
		return nil
	default:
		return fmt.Errorf("unknown item type: %q", t)
	}
}

// Item represents a single queue item: a plan, an instruction or a function.
// Items submitted to the manager need only ItemType, Name, Args and Kwargs;
// the remaining fields are assigned by the server and are populated on items
// returned from the queue or the history.
type Item struct {
	ItemType ItemType       `json:"item_type"`
	Name     string         `json:"name"`
	Args     []any          `json:"args,omitempty"`
	Kwargs   map[string]any `json:"kwargs,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`

	// Assigned by the manager when the item is accepted into the queue.
	ItemUID   string `json:"item_uid,omitempty"`
	User      string `json:"user,omitempty"`
	UserGroup string `json:"user_group,omitempty"`

	// Populated on history items only.
	Result map[string]any `json:"result,omitempty"`
}

// NewPlan creates a plan item with the given plan name, positional args and
// keyword args. Either of args and kwargs may be nil.
func NewPlan(name string, args []any, kwargs map[string]any) *Item {
	return &Item{ItemType: ItemTypePlan, Name: name, Args: args, Kwargs: kwargs}
}

// NewInstruction creates an instruction item. The only instruction currently
// supported by the manager is "queue_stop".
func NewInstruction(name string) *Item {
	return &Item{ItemType: ItemTypeInstruction, Name: name}
}

// NewFunction creates a function item for ItemExecute or FunctionExecute.
func NewFunction(name string, args []any, kwargs map[string]any) *Item {
	return &Item{ItemType: ItemTypeFunction, Name: name, Args: args, Kwargs: kwargs}
}

// Validate checks if the Item has valid field values. Items are validated
// client-side before submission so that obvious mistakes fail fast without a
// round trip to the manager.
func (it *Item) Validate() error {
	if err := it.ItemType.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	if it.Name == "" {
		return fmt.Errorf("item name cannot be empty")
	}

	if it.ItemUID != "" {
		if _, err := uuid.Parse(it.ItemUID); err != nil {
			return fmt.Errorf("invalid item UID %q: %w", it.ItemUID, err)
		}
	}

	return nil
}

// ToMap converts the item to the wire representation accepted by the manager.
func (it *Item) ToMap() (map[string]any, error) {
	b, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize item: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to convert item to map: %w", err)
	}
	return m, nil
}

// ItemFromMap converts a wire representation returned by the manager into an
// Item. Unknown fields are dropped.
func ItemFromMap(m map[string]any) (*Item, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize item map: %w", err)
	}

	var it Item
	if err := json.Unmarshal(b, &it); err != nil {
		return nil, fmt.Errorf("failed to deserialize item: %w", err)
	}
	return &it, nil
}

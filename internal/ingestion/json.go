package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/jonathan/context-crystal/internal/schemas"
	"github.com/jonathan/context-crystal/internal/types"
)

// ParseJSON decodes a conversation already in the service's own JSON shape,
// after validating it against the conversation schema.
func ParseJSON(data []byte) (*types.Conversation, error) {
	if err := schemas.Validate(schemas.Conversation, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	var conv types.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	return &conv, nil
}

package app

import (
	"fmt"
	"time"

	"github.com/openctemio/authz/pkg/domain/shared"
)

// Clock returns the current instant. Services take one so tests can pin
// expiry checks.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// parseID parses a required identifier, naming the field on failure.
func parseID(value, field string) (shared.ID, error) {
	id, err := shared.IDFromString(value)
	if err != nil {
		return shared.ID{}, fmt.Errorf("%w: invalid %s", shared.ErrValidation, field)
	}
	return id, nil
}

// parseOptionalID parses an identifier that may be absent.
func parseOptionalID(value *string, field string) (*shared.ID, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	id, err := parseID(*value, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseIDs parses a list of identifiers and drops duplicates.
func parseIDs(values []string, field string) ([]shared.ID, error) {
	ids := make([]shared.ID, 0, len(values))
	for _, v := range values {
		id, err := parseID(v, field)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return shared.UniqueIDs(ids), nil
}

// actorRef turns an acting user into the nullable audit column value.
// A zero actor is a system operation (bootstrap, CLI seeding).
func actorRef(actor shared.ID) *shared.ID {
	if actor.IsZero() {
		return nil
	}
	return &actor
}

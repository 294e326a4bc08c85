package authz

import (
	"github.com/google/uuid"
	"github.com/restaurant/backend/internal/domain/shared"
)

// Event types and aggregate type raised around module grants
const (
	EventTypeModuleAccessChanged = "ModuleAccessChanged"
	AggregateTypeUser            = "User"
)

// ModuleAccessChangedEvent records that a user's module grants were edited.
// A nil UserID means every user.
type ModuleAccessChangedEvent struct {
	shared.BaseDomainEvent
	UserID uuid.UUID `json:"user_id"`
}

// NewModuleAccessChangedEvent creates the event for userID (uuid.Nil for all users)
func NewModuleAccessChangedEvent(userID uuid.UUID) *ModuleAccessChangedEvent {
	return &ModuleAccessChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeModuleAccessChanged, AggregateTypeUser, userID),
		UserID:          userID,
	}
}

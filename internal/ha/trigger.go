package ha

import (
	"go.uber.org/zap"
)

// Subscriber is the part of HAClient needed to watch an entity
type Subscriber interface {
	SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error)
}

// WatchRefreshEntity calls trigger whenever entityID changes state, so a
// Home Assistant button or helper can request an immediate refresh.
// Transitions into or out of unavailable/unknown are ignored.
func WatchRefreshEntity(client Subscriber, entityID string, trigger func(), logger *zap.Logger) (Subscription, error) {
	return client.SubscribeStateChanges(entityID, func(id string, oldState, newState *State) {
		if newState == nil || isPlaceholder(newState.State) {
			return
		}
		if oldState != nil && isPlaceholder(oldState.State) {
			return
		}
		if oldState != nil && oldState.State == newState.State {
			// attribute-only update
			return
		}

		logger.Info("Refresh requested from Home Assistant",
			zap.String("entity_id", id),
			zap.String("state", newState.State))
		trigger()
	})
}

func isPlaceholder(state string) bool {
	return state == "unavailable" || state == "unknown"
}

package store

import "qsmart/booking-service/internal/models"

var transitionMap = map[string][]string{
	models.StatusInProgress: {models.StatusPending},
	models.StatusMissed:     {models.StatusPending},
	models.StatusCompleted:  {models.StatusInProgress},
}

func ValidTransition(fromStatus, toStatus string) bool {
	allowed, ok := transitionMap[toStatus]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return status == models.StatusCompleted || status == models.StatusMissed
}

func KnownStatus(status string) bool {
	switch status {
	case models.StatusPending, models.StatusInProgress, models.StatusCompleted, models.StatusMissed:
		return true
	}
	return false
}

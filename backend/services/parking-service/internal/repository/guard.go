package repository

import "parkingops/backend/services/parking-service/internal/models"

// Guard is the state a session must still be in for a guarded update to apply.
type Guard struct {
	Status  models.SessionStatus
	Payment models.PaymentStatus
}

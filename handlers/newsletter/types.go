package newsletter

import (
	nl "github.com/tech-arch1tect/folio/services/newsletter"
)

type SubscribeRequest struct {
	Email string `json:"email" form:"email" doc:"address to subscribe"`
}

type TokenRequest struct {
	Token string `json:"token" form:"token" doc:"token from the emailed link"`
}

// StatusResponse reports the outcome of a subscription operation, for
// example "pending", "resent" or "confirmed".
type StatusResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type SendResponse struct {
	OK bool `json:"ok"`
	*nl.SendResult
}

type StatsResponse struct {
	OK          bool  `json:"ok"`
	ActiveCount int64 `json:"activeCount"`
}

type HealthResponse struct {
	OK       bool   `json:"ok"`
	Database string `json:"database"`
}

package dto

import "encoding/json"

// PublishEventRequest is the body of POST /events.
type PublishEventRequest struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// PublishEventResponse acknowledges an accepted event.
type PublishEventResponse struct {
	ID string `json:"id"`
}

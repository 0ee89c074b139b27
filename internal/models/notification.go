package models

import "time"

// StatusNotification is emitted once per status hop to every affected party.
type StatusNotification struct {
	ProjectID     string        `json:"projectId"`
	ProjectNumber string        `json:"projectNumber"`
	FromStatus    ProjectStatus `json:"fromStatus"`
	ToStatus      ProjectStatus `json:"toStatus"`
	Action        string        `json:"action"`
	ActorID       string        `json:"actorId"`
	ActorRole     string        `json:"actorRole"`
	Reason        *string       `json:"reason,omitempty"`
	Recipients    []string      `json:"recipients"`
	OccurredAt    time.Time     `json:"occurredAt"`
}

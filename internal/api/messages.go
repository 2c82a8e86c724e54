package api

import "time"

type UpsertRequest struct {
	Table Table `json:"table"`
	Row   Row   `json:"row"`
}

type UpsertResponse struct {
	Row      Row  `json:"row"`
	Inserted bool `json:"inserted"`
}

type SoftDeleteRequest struct {
	Table     Table     `json:"table"`
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type SoftDeleteResponse struct {
	Row Row `json:"row"`
}

type FetchRequest struct {
	Table Table `json:"table"`
}

type FetchResponse struct {
	Rows []Row `json:"rows"`
}

type PingRequest struct{}

type PingResponse struct {
	ServerTime time.Time `json:"server_time"`
}

package model

import "time"

// WhitelistEntry admits a market maker address to submit quotes.
type WhitelistEntry struct {
	Address string    `json:"address"`
	AddedBy string    `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}

// AuditAction names a whitelist mutation.
type AuditAction string

const (
	AuditAdd    AuditAction = "add"
	AuditRemove AuditAction = "remove"
)

// AuditRecord is an append-only log line for a whitelist mutation.
type AuditRecord struct {
	ID        string      `json:"id"`
	Action    AuditAction `json:"action"`
	Address   string      `json:"address"`
	Admin     string      `json:"admin"`
	CreatedAt time.Time   `json:"created_at"`
}

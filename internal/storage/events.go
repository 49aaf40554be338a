// Package storage streams guardrail decision events to analytics storage.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventWriter is the interface for writing decision events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// DecisionEvent is the analytics view of one pipeline run.
type DecisionEvent struct {
	RequestID      string
	AuditID        int64 // 0 when the audit write failed
	Timestamp      time.Time
	UserID         int64
	Username       string
	Role           string
	Department     string
	QueryPreview   string // First 500 chars
	QueryHash      string // SHA256 of full query
	ToolInvoked    string
	ToolsRequested []string
	ToolsBlocked   []string
	HooksTriggered []string
	ActionTaken    string
	Blocked        bool
	DataMasked     bool
	RiskScore      uint8
	ResultCount    uint32
	LatencyMs      float32
}

// QueryPreviewLength is the max chars stored in query_preview.
const QueryPreviewLength = 500

// TruncateQuery returns the first N characters (runes) of a query for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncateQuery(query string, maxLen int) string {
	runes := []rune(query)
	if len(runes) <= maxLen {
		return query
	}
	return string(runes[:maxLen])
}

// HashQuery returns the hex SHA256 of query.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

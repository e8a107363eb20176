package types

import (
	"time"
)

// Room metadata defaults applied when a room is created on first join
const (
	DefaultRoomWidth  = 800.0
	DefaultRoomHeight = 600.0
)

// DefaultPatterns is the classification ruleset compiled into every room
// FUNCTIONAL DISCOVERY: Severity-prefixed lines are routed into the pending queue,
// index order matters because matches are reported by pattern index
var DefaultPatterns = []string{
	`^ERROR:.*`,
	`^WARN:.*`,
	`^INFO:.*`,
}

// Status is the free-form status sub-record carried by every entity
type Status struct {
	Description string `json:"description"`
	Level       int64  `json:"level"`
	IsActive    bool   `json:"is_active"`
}

// Entity is a positioned, named object shared by all sessions of a room
// ARCHITECTURAL DISCOVERY: Entity identity is the integer id only; the record is
// replaced wholesale on upsert so no field-level merge rules exist
type Entity struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Status  Status  `json:"status"`
	ImageID *string `json:"image_id"`
}

// RoomInfo is the shared metadata of one room
// FUNCTIONAL DISCOVERY: Focal point and focal range are pointers so that "never set"
// serializes as null, matching what web clients already expect
type RoomInfo struct {
	Width          float64     `json:"width"`
	Height         float64     `json:"height"`
	ActiveSessions int         `json:"active_sessions"`
	FocalPoint     *[2]float64 `json:"focal_point"`
	FocalRange     *[4]float64 `json:"focal_range"`
}

// Position is the focal point carried by a focal-point update
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is the focal rectangle carried by a focal-point update
type Bounds struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// FocalPointMessage moves the shared viewpoint of a room
type FocalPointMessage struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Bounds   Bounds   `json:"bounds"`
}

// ClassifiedMessage wraps free text that matched no structured schema
type ClassifiedMessage struct {
	Content string `json:"content"`
}

// ImageReference is broadcast after a binary upload has been persisted
type ImageReference struct {
	ImageID string `json:"image_id"`
}

// StoredImage describes one persisted binary upload
type StoredImage struct {
	ID        string    `json:"id"`
	MimeType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomSummary is the read model served for a single room
type RoomSummary struct {
	Path           string   `json:"path"`
	ActiveSessions int      `json:"active_sessions"`
	RoomInfo       RoomInfo `json:"room_info"`
}

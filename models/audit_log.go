package models

import "time"

const AuditTable = "audit_logs"

// AuditLog records one admin mutation.
type AuditLog struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID       string    `gorm:"type:uuid;index" json:"actorId"`
	ActorUsername string    `gorm:"size:255" json:"actorUsername"`
	Action        string    `gorm:"size:64;not null;index" json:"action"`
	TargetType    string    `gorm:"size:32" json:"targetType"`
	TargetID      string    `gorm:"size:64" json:"targetId"`
	Detail        string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
}

func (AuditLog) TableName() string { return AuditTable }

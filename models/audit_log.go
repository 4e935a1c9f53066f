package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ProfileID    *uint           `gorm:"index:idx_audit_profile_id" json:"profile_id,omitempty"`
	Profile      *Profile        `gorm:"foreignKey:ProfileID;references:ID" json:"profile,omitempty"`
	Action       string          `gorm:"type:audit_action_enum;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"type:inet;index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb;index:idx_audit_metadata,type:gin" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionEditionGenerated        = "edition_generated"
	AuditActionEditionGenerationFailed = "edition_generation_failed"
	AuditActionEditionPushed           = "edition_pushed"
	AuditActionEditionPushFailed       = "edition_push_failed"
	AuditActionEditionPreviewSent      = "edition_preview_sent"
	AuditActionEditionPreviewFailed    = "edition_preview_failed"
	AuditActionEditionDispatched       = "edition_dispatched"
	AuditActionStoriesGenerated        = "stories_generated"
	AuditActionStoriesGenerationFailed = "stories_generation_failed"
	AuditActionStorySaved              = "story_saved"
	AuditActionESPConnected            = "esp_connected"
	AuditActionESPConnectFailed        = "esp_connect_failed"
	AuditActionESPDisconnected         = "esp_disconnected"
	AuditActionTokenRefreshed          = "token_refreshed"
	AuditActionTokenRefreshFailed      = "token_refresh_failed"
	AuditActionProfileUpdated          = "profile_updated"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	ProfileID     *uint
	Action        *string
	Success       *bool
	IPAddress     *string
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

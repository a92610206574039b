// Package events names the subjects published on the event bus.
package events

// Preference events. Data carries user_id, categories and the full document.
const (
	PreferencesCreated = "user.preferences.created"
	PreferencesUpdated = "user.preferences.updated"
)

// Account events. Data carries user_id.
const (
	ProfileUpdated = "user.profile.updated"
	AccountDeleted = "user.account.deleted"
)

// Backup events. Data carries user_id and path.
const (
	BackupCompleted = "user.backup.completed"
)

// UserSubjects matches every user-scoped event for gateway fan-out.
const UserSubjects = "user.>"

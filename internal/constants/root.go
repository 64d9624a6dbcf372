package constants

import "time"

const (
	AppName            = "studyplanner"
	DisplayName        = "Study Planner 360"
	Version            = "v0.1.0"
	DefaultConfigDir   = "~/.config/studyplanner"
	DefaultConfigFile  = "config.yaml"
	DefaultIdentityKey = "sync-id"
	DefaultKeyringUser = "database-connection"
	EnvPrefix          = "STUDYPLANNER_"

	// DateFormat is the canonical date-key format (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// DefaultNamespace partitions the shared collections per application
	DefaultNamespace = "my-bank-prep-app"

	// Collection names
	CollectionHabits = "habits"
	CollectionScores = "mock_scores"

	// Document fields
	FieldTitle          = "title"
	FieldCompletedDates = "completedDates"
	FieldOwnerID        = "ownerId"
	FieldCreatedAt      = "createdAt"
	FieldScore          = "score"
	FieldTotal          = "total"
	FieldDate           = "date"

	// Mock score defaults
	DefaultMockTitle        = "Mock"
	DefaultMockDisplayTitle = "General Mock"
	DefaultMockTotal        = 100

	// WindowDays is the trailing window used for weekly consistency
	WindowDays = 7

	// Store defaults
	DefaultStoreDSN     = "~/.config/studyplanner/studyplanner.db"
	DefaultPollInterval = 2 * time.Second

	// Sync server defaults
	DefaultServerAddr = "127.0.0.1:8787"
	DefaultTokenTTL   = 30 * 24 * time.Hour
	TokenIssuer       = "studyplanner-sync"

	// Backups of the sqlite store
	BackupDirName = "backups"
	BackupPrefix  = "studyplanner-"
	BackupSuffix  = ".db"
	MaxBackups    = 14
)

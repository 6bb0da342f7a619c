// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort             = "8080"
	DefaultDBPath           = "aspect.db"
	DefaultPictureDir       = "Pictures/Landscape"
	DefaultImportDir        = "Pictures/Import"
	DefaultDisplayWidth     = 1920
	DefaultDisplayHeight    = 1080
	DefaultTargetSetSize    = 10
	DefaultMinSetSize       = 3
	DefaultMaxDownloads     = 3
	DefaultMaxStoreWrites   = 1
	DefaultBatchSize        = 5
	DefaultScanInterval     = 5 * time.Minute
	DefaultImportInterval   = 15 * time.Minute
	DefaultProcessInterval  = 5 * time.Minute
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultRetryCount       = 3
	DefaultRetryBase        = 1 * time.Second
	DefaultNormalizeWorkers = 3
)

// Scheduler
const (
	SchedulerTick  = 1 * time.Second
	BatchPause     = 1 * time.Second
	InsertBatchMax = 2000
)

// Scheduled job names, shared between registration and the manual-trigger
// endpoints.
const (
	JobScan    = "catalog-scan"
	JobImport  = "import"
	JobProcess = "process"
)

// Orientation category directory names. The watched roots are these three
// siblings under the parent of the configured picture dir.
const (
	DirLandscape = "Landscape"
	DirPortrait  = "Portrait"
	DirSquare    = "Square"
)

// Randomness service
const (
	RandomBatchLimit = 10000
)

// Recognized media extensions (lowercase, with dot).
var MediaExtensions = []string{".png", ".jpg", ".jpeg", ".heif", ".heic", ".jxl", ".webp"}

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Characters to sanitize from filesystem paths
const InvalidPathChars = "<>:\"/\\|?*"

package config

// Constants defining default values for application configuration
const (
	DefaultSourcesCSVPath = "./sources.csv"
	DefaultDBPath         = "./airquality.db"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultWorkerCount = 0  // 0 means use runtime.NumCPU()
	DefaultInterval    = 60 // Minutes between collection runs, 0 for one-shot

	DefaultLogLevel = "info"
)

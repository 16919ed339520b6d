package utils

import "time"

const (
	Version = "v0.3.1"
	CliName = "VPrice"

	// how long a routine may wait for a free page before we log about it
	AcquireWaitIntervalLog = 1 * time.Minute
)

package config

import "time"

var (
	DefaultLogLevel          string        = "info"
	DefaultLogFormat         string        = "text"
	DefaultIndexFile         string        = "./all_validator_indices.txt"
	DefaultIndexOrder        string        = "file"
	DefaultSource            string        = SourceBeaconcha
	DefaultBeaconchaEndpoint string        = "https://beaconcha.in/api/v1"
	DefaultBnEndpoint        string        = "http://localhost:5052"
	DefaultElEndpoint        string        = ""
	DefaultRewardAddress     string        = ""
	DefaultBatchSize         int           = 100 // max indexes per beaconcha.in call
	DefaultCallsPerMinute    int           = 10  // beaconcha.in free tier
	DefaultMaxConcurrent     int           = 10
	DefaultRequestTimeout    time.Duration = 0
	DefaultExpectedLabel     string        = ""
	DefaultFeeRate           string        = "0.20"
	DefaultRewardAdjustment  int64         = 0
	DefaultReportFormat      string        = "text"
	DefaultPushgatewayUrl    string        = ""
)

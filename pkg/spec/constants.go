package spec

const (
	WeiPerGwei     = 1000000000
	OracleDecimals = 18 // fixed point precision expected by the on-chain oracle
)

type ValidatorStatus int8

const (
	OTHER_STATUS ValidatorStatus = iota
	ACTIVE_ONLINE_STATUS
	EXITED_STATUS
)

func (s ValidatorStatus) String() string {
	switch s {
	case ACTIVE_ONLINE_STATUS:
		return "active_online"
	case EXITED_STATUS:
		return "exited"
	default:
		return "other"
	}
}

// ParseValidatorStatus maps the status reported by beaconcha.in to the
// three states the aggregation cares about.
func ParseValidatorStatus(status string) ValidatorStatus {
	switch status {
	case "active_online":
		return ACTIVE_ONLINE_STATUS
	case "exited":
		return EXITED_STATUS
	default:
		return OTHER_STATUS
	}
}

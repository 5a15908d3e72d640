package awsx

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// IsThrottlingError reports whether err is a DynamoDB throughput-throttling
// error. These are a flow-control signal distinct from a transport error
// proper (section 7: "Unprocessed-key responses are not errors"), but a
// batch or paginator call can also fail outright with one of these typed
// errors rather than via UnprocessedKeys/UnprocessedItems — e.g. a Query or
// Scan call that is itself rejected for exceeding provisioned throughput.
//
// DynamoDB throttles in four scenarios: hot-partition key-range throughput,
// provisioned RCU/WCU exhaustion, account-level service quotas, and
// on-demand maximum-throughput caps. All surface as
// ProvisionedThroughputExceededException or RequestLimitExceeded.
func IsThrottlingError(err error) bool {
	var throughputErr *types.ProvisionedThroughputExceededException
	var requestLimitErr *types.RequestLimitExceeded
	if errors.As(err, &throughputErr) || errors.As(err, &requestLimitErr) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ProvisionedThroughputExceededException", "RequestLimitExceeded", "ThrottlingException":
			return true
		}
	}
	return false
}

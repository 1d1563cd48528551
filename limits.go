package dynatable

// Service request-shaping limits. These mirror the documented DynamoDB
// hard limits and are policy constants: orchestration code chunks against
// them rather than hard-coding sizes per call site.
const (
	// MaxBatchWriteItems is the maximum put/delete requests per BatchWriteItem call.
	MaxBatchWriteItems = 25

	// MaxBatchGetKeys is the maximum keys per BatchGetItem call.
	MaxBatchGetKeys = 100

	// MaxTransactItems is the maximum operations per transaction.
	MaxTransactItems = 100

	// MaxItemSize is the maximum size of a single item in bytes (400 KB).
	MaxItemSize = 400 * 1024

	// MaxPageSize is the maximum response size of a query/scan page in bytes
	// (1 MB). The service may return fewer items than requested because of
	// this ceiling; short pages do not signal exhaustion.
	MaxPageSize = 1024 * 1024
)

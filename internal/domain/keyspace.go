package domain

const (
	QueueKey  = "queue:verification_request"
	PoisonKey = "poison:verification_request"
	// PoisonIDsKey is the set of poison ids already appended to PoisonKey.
	PoisonIDsKey = "poison:verification_request:ids"

	accountKeyPrefix = "account:"
	statusKeyPrefix  = "verification:"
	ownerKeyPrefix   = "owner:"
)

func AccountKey(accountID string) string {
	return accountKeyPrefix + accountID
}

func StatusKey(transactionID string) string {
	return statusKeyPrefix + transactionID
}

func OwnerKey(transactionID string) string {
	return ownerKeyPrefix + transactionID
}

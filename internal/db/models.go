package db

// Account holds one provisioned identity: an external customer
// reference plus hashes for the normal and duress PINs. Accounts are
// immutable after provisioning.
type Account struct {
	ID            string
	Reference     string
	PINHash       string
	DuressPINHash string
	CreatedAt     int64
}

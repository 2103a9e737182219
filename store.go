package registration

import "context"

// Bucket names one of the mappings in the registration container.
type Bucket string

const (
	// BucketPending maps e-mail -> PendingRegistration.
	BucketPending Bucket = "pending"
	// BucketByID is the primary store: identifier -> Registration.
	BucketByID Bucket = "by_id"
	// BucketByEmail is the unique secondary index e-mail -> identifier.
	BucketByEmail Bucket = "by_email"
	// BucketByLogin is the unique secondary index login -> identifier.
	BucketByLogin Bucket = "by_login"
	// BucketGroupMembers maps group -> member identifiers.
	BucketGroupMembers Bucket = "group_members"
	// BucketMemberGroups maps identifier -> group names.
	BucketMemberGroups Bucket = "member_groups"
)

// Buckets enumerates every mapping of the container, in a stable order.
var Buckets = []Bucket{
	BucketPending,
	BucketByID,
	BucketByEmail,
	BucketByLogin,
	BucketGroupMembers,
	BucketMemberGroups,
}

// Tx is the unit of work handed to store callbacks. All mutations performed
// through one Tx commit atomically or not at all, and reads within one Tx are
// snapshot consistent.
type Tx interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(bucket Bucket, key string) ([]byte, error)
	// Set stores value under key, overwriting any previous value.
	Set(bucket Bucket, key string, value []byte) error
	// Delete removes key, failing with ErrKeyNotFound when absent.
	Delete(bucket Bucket, key string) error
	// Scan calls fn for each (key, value) pair in the bucket, in
	// implementation-defined order, stopping at the first error.
	Scan(bucket Bucket, fn func(key string, value []byte) error) error
}

// Store is the transactional record store the add-on persists into. It is a
// capability-set interface selected at composition time; there is no runtime
// adapter registry and no package-level default.
//
// Implementations must provide serializable isolation per container: two
// concurrent RunInTx calls touching overlapping keys must not both commit in
// a way that leaves the secondary indexes disagreeing with the primary
// records. On a detected write conflict one transaction fails and the caller
// retries; this package never adds its own locking on top.
//
// The backing container materializes lazily: reads against a store that has
// never been written to return ErrKeyNotFound for every key rather than
// erroring.
type Store interface {
	// RunInTx runs fn inside a read-write transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn with a read-only snapshot; writes fail with ErrReadOnlyTx.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

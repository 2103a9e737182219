package registration

import (
	"time"

	"github.com/google/uuid"
)

// GroupAdmin is the well-known admin group used by the admin surface.
const GroupAdmin = "g:admin"

// PendingRegistration is an unconfirmed signup awaiting e-mail verification.
// A pending record exists under its e-mail key if and only if that e-mail has
// an outstanding, unconfirmed signup. Restarting registration replaces the
// record wholesale; the old token becomes invalid.
type PendingRegistration struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Registration is a confirmed, active account keyed by an opaque identifier.
// Email and Login are exactly the keys the record is indexed under; the
// identifier is immutable once assigned. Login starts as a copy of Email at
// confirmation time and has no structural link back to it afterwards.
type Registration struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Login            string     `json:"login"`
	PasswordHash     string     `json:"password_hash,omitempty"`
	SecurityQuestion string     `json:"security_question,omitempty"`
	SecurityAnswer   string     `json:"security_answer,omitempty"`
	ResetToken       string     `json:"reset_token,omitempty"`
	ResetRequestedAt *time.Time `json:"reset_requested_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at,omitempty"`
}

// HasPassword reports whether a credential has been set. A confirmed record
// awaits its first password until SetPassword runs.
func (r *Registration) HasPassword() bool {
	return r != nil && r.PasswordHash != ""
}

// HasResetToken reports whether a password reset is outstanding.
func (r *Registration) HasResetToken() bool {
	return r != nil && r.ResetToken != ""
}

// Clone returns a shallow copy so callers can mutate without aliasing the
// record another lookup returned.
func (r *Registration) Clone() *Registration {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// clearReset drops any outstanding reset token. Every unrelated update goes
// through here so a stale token never survives an account edit.
func (r *Registration) clearReset() {
	r.ResetToken = ""
	r.ResetRequestedAt = nil
}

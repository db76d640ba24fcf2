package suppliers

import (
	"strconv"
	"strings"
	"time"
)

// Supplier represents a supplier entity scoped to an owner.
type Supplier struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnknownName is the fallback used when a reference cannot be resolved.
const UnknownName = "unknown supplier"

// Ref is a supplier reference as stored on purchases: either a numeric
// supplier id or a free-text name typed by a user.
type Ref struct {
	ID   int64
	Name string
}

// IsID reports whether the reference carries a numeric id.
func (r Ref) IsID() bool {
	return r.ID > 0
}

// IsZero reports whether the reference is empty.
func (r Ref) IsZero() bool {
	return r.ID == 0 && r.Name == ""
}

// String renders the reference back to its stored form.
func (r Ref) String() string {
	if r.IsID() {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.Name
}

// ParseRef classifies a raw supplier field once at the boundary. A value that
// parses as a positive integer is treated as an id; anything else is kept as
// a literal name. A numeric-looking name that collides with a real id
// resolves as the id; the directory falls back to the literal text when no
// such supplier exists.
func ParseRef(raw string) Ref {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Ref{}
	}
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil && id > 0 {
		return Ref{ID: id, Name: trimmed}
	}
	return Ref{Name: trimmed}
}

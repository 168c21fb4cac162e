package localstore

import (
	"fmt"
	"strings"
)

// Entity names used in storage keys
const (
	EntityOrders     = "orders"
	EntityAttendance = "attendance"
	EntityShift      = "shift"
	entityMaster     = "master."
)

// DefaultPrefix namespaces every key written by the application
const DefaultPrefix = "kasir"

// Key addresses one stored collection. Its string form is
// <prefix>-<branch>-<entity>; changing Branch changes the namespace.
type Key struct {
	Prefix string
	Branch string
	Entity string
}

// String returns the persisted key name
func (k Key) String() string {
	prefix := k.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%s-%s", prefix, k.Branch, k.Entity)
}

// MasterEntity returns the entity name for a master document kind
func MasterEntity(kind string) string {
	return entityMaster + kind
}

// IsMaster reports whether the key holds a master document
func (k Key) IsMaster() bool {
	return strings.HasPrefix(k.Entity, entityMaster)
}

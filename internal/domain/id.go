// Package domain contains entities without logic, just meta-data.
package domain

import "github.com/google/uuid"

// NewID returns a prefixed, collision-resistant entity id such as "msg_<uuid>".
// Prefixes keep ids self-describing in logs and in the store.
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

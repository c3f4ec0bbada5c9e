package utils

import "github.com/google/uuid"

// GenerateConnectionID returns a fresh participant connection ID.
func GenerateConnectionID() string {
	return "conn_" + uuid.NewString()
}

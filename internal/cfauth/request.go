package cfauth

import (
	"encoding/base64"
	"fmt"
)

// DefaultMountPath is the mount of the Cloud Foundry auth backend.
const DefaultMountPath = "cf"

// LoginRequest is the payload and Vault path of one login attempt.
type LoginRequest struct {
	// Path is relative to /v1/, e.g. auth/cf/login.
	Path string
	Body map[string]string
}

// BuildLoginRequest base64-encodes certificate and key as-is; their structure
// is validated by Vault, not here.
func BuildLoginRequest(certificate, key, mountPath string) LoginRequest {
	return LoginRequest{
		Path: LoginPath(mountPath),
		Body: map[string]string{
			"certificate": base64.StdEncoding.EncodeToString([]byte(certificate)),
			"key":         base64.StdEncoding.EncodeToString([]byte(key)),
		},
	}
}

// LoginPath returns auth/{mountPath}/login.
func LoginPath(mountPath string) string {
	return fmt.Sprintf("auth/%s/login", mountPath)
}

package cfauth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	// DefaultInstanceCertificatePath is where Cloud Foundry mounts the instance certificate.
	DefaultInstanceCertificatePath = "/etc/cf-instance-credentials/instance.crt"

	// DefaultInstanceKeyPath is where Cloud Foundry mounts the instance private key.
	DefaultInstanceKeyPath = "/etc/cf-instance-credentials/instance.key"
)

var errEmptyCredential = errors.New("resource is empty")

// CredentialSupplier yields PEM content used as a login credential.
// File content is passed through byte for byte; non-ASCII bytes are not
// rejected or rewritten.
type CredentialSupplier interface {
	Value() (string, error)
}

// InstanceCertificateFile holds the instance certificate, read once at construction.
type InstanceCertificateFile struct {
	path    string
	content string
}

// NewInstanceCertificateFile reads the certificate at path.
func NewInstanceCertificateFile(path string) (*InstanceCertificateFile, error) {
	content, err := readCredentialFile("certificate", path)
	if err != nil {
		return nil, err
	}
	return &InstanceCertificateFile{path: path, content: content}, nil
}

// NewInstanceCertificateFromFS reads the certificate named name from fsys.
func NewInstanceCertificateFromFS(fsys fs.FS, name string) (*InstanceCertificateFile, error) {
	content, err := readCredentialFS("certificate", fsys, name)
	if err != nil {
		return nil, err
	}
	return &InstanceCertificateFile{path: name, content: content}, nil
}

func (f *InstanceCertificateFile) Value() (string, error) { return f.content, nil }

// Path returns the locator the certificate was read from.
func (f *InstanceCertificateFile) Path() string { return f.path }

// InstanceKeyFile holds the instance private key, read once at construction.
type InstanceKeyFile struct {
	path    string
	content string
}

// NewInstanceKeyFile reads the private key at path.
func NewInstanceKeyFile(path string) (*InstanceKeyFile, error) {
	content, err := readCredentialFile("key", path)
	if err != nil {
		return nil, err
	}
	return &InstanceKeyFile{path: path, content: content}, nil
}

// NewInstanceKeyFromFS reads the private key named name from fsys.
func NewInstanceKeyFromFS(fsys fs.FS, name string) (*InstanceKeyFile, error) {
	content, err := readCredentialFS("key", fsys, name)
	if err != nil {
		return nil, err
	}
	return &InstanceKeyFile{path: name, content: content}, nil
}

func (f *InstanceKeyFile) Value() (string, error) { return f.content, nil }

// Path returns the locator the key was read from.
func (f *InstanceKeyFile) Path() string { return f.path }

// StaticCredential is an in-memory supplier, mainly for tests. A non-nil Err
// is returned from Value instead of the content.
type StaticCredential struct {
	Content string
	Err     error
}

func (s StaticCredential) Value() (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Content, nil
}

func readCredentialFile(kind, path string) (string, error) {
	data, err := os.ReadFile(path)
	return credentialContent(kind, path, data, err)
}

func readCredentialFS(kind string, fsys fs.FS, name string) (string, error) {
	if fsys == nil {
		return "", &CredentialLoadError{Kind: kind, Path: name, Err: errors.New("nil filesystem")}
	}
	data, err := fs.ReadFile(fsys, name)
	return credentialContent(kind, name, data, err)
}

func credentialContent(kind, path string, data []byte, err error) (string, error) {
	if errors.Is(err, fs.ErrNotExist) {
		return "", &CredentialLoadError{Kind: kind, Path: path, Err: fmt.Errorf("resource %s does not exist: %w", path, err)}
	}
	if err != nil {
		return "", &CredentialLoadError{Kind: kind, Path: path, Err: err}
	}
	if len(data) == 0 {
		return "", &CredentialLoadError{Kind: kind, Path: path, Err: errEmptyCredential}
	}
	return string(data), nil
}

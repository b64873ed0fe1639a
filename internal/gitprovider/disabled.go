package gitprovider

import (
	"context"
	"fmt"
)

// DisabledProvider stands in for a provider whose credentials are missing.
// The server still starts; opening a PR reports why it cannot.
type DisabledProvider struct {
	name   string
	reason string
}

// NewDisabledProvider creates a provider that rejects every operation.
func NewDisabledProvider(name, reason string) *DisabledProvider {
	return &DisabledProvider{name: name, reason: reason}
}

func (d *DisabledProvider) Name() string { return d.name }

func (d *DisabledProvider) CreatePR(_ context.Context, _ RepoRef, _ PRRequest) (*PRResult, error) {
	return nil, fmt.Errorf("git provider %q is disabled: %s", d.name, d.reason)
}

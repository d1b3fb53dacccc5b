package data

import (
	"errors"
	"fmt"

	"github.com/reachcapital/portal/internal/ports"
)

// Shared sentinel errors for data-layer repositories. The not-found and
// duplicate sentinels wrap the ports sentinels so services can match either.
var (
	ErrIdentityNotFound   = fmt.Errorf("identity %w", ports.ErrNotFound)
	ErrIdentityExists     = fmt.Errorf("identity %w", ports.ErrAlreadyExists)
	ErrSubmissionNotFound = fmt.Errorf("submission %w", ports.ErrNotFound)
	ErrEmailRequired      = errors.New("email is required")
)

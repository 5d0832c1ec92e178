package shared

import (
	"fmt"

	"github.com/inventra/inventra/internal/platform/httpx"
)

// ErrInvalidCredentials indicates login failure.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", httpx.ErrUnauthorized)

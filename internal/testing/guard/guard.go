// Package guard flips the binaries into test mode when imported by a test package,
// so entrypoints exercised from tests never dial PostgreSQL or Redis.
package guard

import (
	"os"
	"sync"
)

// Env is the variable app.InTestMode reads.
const Env = "INVENTRA_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}

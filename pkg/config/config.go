package config

import "github.com/hu4nghe/lockfree-queue/internal/testbench"

// Config is an alias for testbench.Config. This allows other programs to import
// the harness configuration without pulling in the entire testbench package.
type Config = testbench.Config

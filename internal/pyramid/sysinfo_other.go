//go:build !darwin && !linux

package pyramid

import (
	"fmt"
	"runtime"
)

func totalSystemRAM() (uint64, error) {
	return 0, fmt.Errorf("RAM detection not supported on %s", runtime.GOOS)
}

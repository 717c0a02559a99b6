package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PROMANAGE_TEST_MODE") == "" {
			_ = os.Setenv("PROMANAGE_TEST_MODE", "1")
		}
	})
}

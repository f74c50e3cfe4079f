package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TASKROOM_TEST_MODE") == "" {
			_ = os.Setenv("TASKROOM_TEST_MODE", "1")
		}
	})
}

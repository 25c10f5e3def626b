package bus

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "consumer"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

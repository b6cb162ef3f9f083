// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound API calls. Telegram answers quickly; a
// stuck request must not hold a delivery worker for long.
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}

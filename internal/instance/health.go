package instance

import (
	"fmt"
	"net/http"
	"time"
)

// HealthCheck reports whether the agentworker at httpAddr is answering its
// observability surface, teacher's HealthCheck(port) retargeted from a
// dedicated /api/health route to the spec's GET /snapshot.
func HealthCheck(httpAddr string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/snapshot", httpAddr))
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

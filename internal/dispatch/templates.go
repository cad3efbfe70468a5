package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"github.com/elastic/file-to-elasticsearch/internal/config"
)

// SyncTemplates fetches existing templates from the cluster and PUTs any
// that are missing or whose spec differs (spec §4.D "Dynamic templates").
// Failures are logged by the caller and retried on the next startup; they
// must never block ingestion, so every per-template failure is collected
// into one aggregate error rather than aborting on the first one.
func (d *Dispatcher) SyncTemplates(ctx context.Context, templates []config.DynamicTemplate) error {
	if len(d.servers) == 0 || len(templates) == 0 {
		return nil
	}
	var result *multierror.Error
	for _, tmpl := range templates {
		if err := d.syncOneTemplate(ctx, tmpl); err != nil {
			result = multierror.Append(result, fmt.Errorf("template %s: %w", tmpl.Name, err))
		}
	}
	return result.ErrorOrNil()
}

func (d *Dispatcher) syncOneTemplate(ctx context.Context, tmpl config.DynamicTemplate) error {
	server := d.servers[d.rng.Intn(len(d.servers))]
	url := fmt.Sprintf("http://%s/_template/%s", server, tmpl.Name)

	existing, err := d.fetchTemplate(ctx, url)
	if err == nil && bytes.Equal(bytes.TrimSpace(existing), bytes.TrimSpace(tmpl.Body)) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(tmpl.Body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("PUT template failed: status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) fetchTemplate(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("template not found")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET template failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

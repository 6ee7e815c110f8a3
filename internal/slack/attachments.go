package slack

import (
	"context"
	"path/filepath"

	"slack-claude-runner/internal/model"
)

// FetchAttachments downloads every file reference with a usable URL into the
// workspace root. Failures degrade the prompt's context instead of aborting:
// only the successful local paths are returned.
func (c *Client) FetchAttachments(ctx context.Context, files []model.FileRef, workspaceDir string) []string {
	var paths []string
	for _, ref := range files {
		if ref.DownloadURL == "" {
			continue
		}
		name := filepath.Base(ref.Name)
		if name == "." || name == string(filepath.Separator) {
			continue
		}
		dest := filepath.Join(workspaceDir, name)
		if err := c.DownloadFile(ctx, ref.DownloadURL, dest); err != nil {
			c.log.Warn("attachment download failed", "name", ref.Name, "error", err)
			continue
		}
		paths = append(paths, dest)
	}
	return paths
}

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// SyncStatus is the backend's cloud synchronization state.
type SyncStatus struct {
	LastSyncTime     *string `json:"last_sync_time,omitempty" yaml:"last_sync_time,omitempty"`
	NextSyncTime     *string `json:"next_sync_time,omitempty" yaml:"next_sync_time,omitempty"`
	RemoteFileID     string  `json:"remote_file_id,omitempty" yaml:"remote_file_id,omitempty"`
	SyncInterval     int     `json:"sync_interval,omitempty" yaml:"sync_interval,omitempty"`
	Enabled          bool    `json:"enabled" yaml:"enabled"`
	ServiceAvailable bool    `json:"service_available" yaml:"service_available"`
	AutoSyncRunning  bool    `json:"auto_sync_running" yaml:"auto_sync_running"`
}

// SyncResult reports the outcome of a synchronization run.
type SyncResult struct {
	Action        string `json:"action,omitempty" yaml:"action,omitempty"`
	Message       string `json:"message" yaml:"message"`
	SyncDirection string `json:"sync_direction,omitempty" yaml:"sync_direction,omitempty"`
	FileSize      int64  `json:"file_size,omitempty" yaml:"file_size,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

// SyncEvent is one entry of the synchronization history.
type SyncEvent struct {
	Timestamp  string `json:"timestamp" yaml:"timestamp"`
	Action     string `json:"action" yaml:"action"`
	Message    string `json:"message" yaml:"message"`
	ID         int64  `json:"id" yaml:"id"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
	Success    bool   `json:"success" yaml:"success"`
}

// SyncDirection forces a manual synchronization one way.
type SyncDirection string

// Sync directions. The empty direction lets the backend decide.
const (
	SyncAuto     SyncDirection = ""
	SyncUpload   SyncDirection = "upload"
	SyncDownload SyncDirection = "download"
)

// Backup is a system backup archive created on the backend.
type Backup struct {
	Name      string   `json:"backup_name" yaml:"name"`
	Path      string   `json:"backup_path,omitempty" yaml:"path,omitempty"`
	CreatedAt string   `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Files     []string `json:"files_included,omitempty" yaml:"files,omitempty"`
	Size      int64    `json:"size_bytes,omitempty" yaml:"size,omitempty"`
}

// SyncStatus returns the cloud synchronization state.
func (c *Client) SyncStatus(ctx context.Context) (*SyncStatus, error) {
	var status SyncStatus
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/sync/status"}, &status); err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}
	return &status, nil
}

// EnableSync turns cloud synchronization on.
func (c *Client) EnableSync(ctx context.Context) (string, error) {
	return c.syncAction(ctx, http.MethodPost, "/api/sync/enable", nil)
}

// DisableSync turns cloud synchronization off.
func (c *Client) DisableSync(ctx context.Context) (string, error) {
	return c.syncAction(ctx, http.MethodPost, "/api/sync/disable", nil)
}

// ManualSync runs a synchronization now, optionally forcing its direction.
func (c *Client) ManualSync(ctx context.Context, direction SyncDirection) (*SyncResult, error) {
	q := url.Values{}
	setString(q, "force_direction", string(direction))
	return c.syncRun(ctx, "/api/sync/manual", q)
}

// ForceUpload overwrites the remote copy with the local database.
func (c *Client) ForceUpload(ctx context.Context) (*SyncResult, error) {
	return c.syncRun(ctx, "/api/sync/upload", nil)
}

// ForceDownload overwrites the local database with the remote copy.
func (c *Client) ForceDownload(ctx context.Context) (*SyncResult, error) {
	return c.syncRun(ctx, "/api/sync/download", nil)
}

// StartAutoSync starts periodic synchronization.
func (c *Client) StartAutoSync(ctx context.Context) (string, error) {
	return c.syncAction(ctx, http.MethodPost, "/api/sync/auto-sync/start", nil)
}

// StopAutoSync stops periodic synchronization.
func (c *Client) StopAutoSync(ctx context.Context) (string, error) {
	return c.syncAction(ctx, http.MethodPost, "/api/sync/auto-sync/stop", nil)
}

// SetAutoSyncInterval changes the period of automatic synchronization.
// The backend accepts one minute to one hour.
func (c *Client) SetAutoSyncInterval(ctx context.Context, interval time.Duration) (string, error) {
	seconds := int(interval / time.Second)
	if seconds < 60 || seconds > 3600 {
		return "", fmt.Errorf("sync interval %s outside 1m..1h", interval)
	}
	q := url.Values{"interval_seconds": {strconv.Itoa(seconds)}}
	return c.syncAction(ctx, http.MethodPut, "/api/sync/auto-sync/interval", q)
}

// SyncHistory returns the most recent synchronization events.
func (c *Client) SyncHistory(ctx context.Context, limit int) ([]SyncEvent, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var data struct {
		History []SyncEvent `json:"history"`
	}
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/sync/history", query: q, enveloped: true}, &data); err != nil {
		return nil, fmt.Errorf("failed to get sync history: %w", err)
	}
	return data.History, nil
}

// CreateBackup asks the backend to archive its database and configuration.
func (c *Client) CreateBackup(ctx context.Context) (*Backup, error) {
	var b Backup
	if _, err := c.call(ctx, request{method: http.MethodPost, path: "/api/system/backup/create", enveloped: true}, &b); err != nil {
		return nil, fmt.Errorf("failed to create backup: %w", err)
	}
	return &b, nil
}

// ListBackups lists the backups known to the backend.
func (c *Client) ListBackups(ctx context.Context) ([]Backup, error) {
	var data struct {
		Backups []Backup `json:"backups"`
	}
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/system/backup/list", enveloped: true}, &data); err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	return data.Backups, nil
}

// RestoreBackup restores the named backup.
func (c *Client) RestoreBackup(ctx context.Context, name string) (string, error) {
	return c.syncAction(ctx, http.MethodPost, "/api/system/backup/restore/"+url.PathEscape(name), nil)
}

// DeleteBackup deletes the named backup.
func (c *Client) DeleteBackup(ctx context.Context, name string) (string, error) {
	return c.syncAction(ctx, http.MethodDelete, "/api/system/backup/"+url.PathEscape(name), nil)
}

func (c *Client) syncAction(ctx context.Context, method, path string, q url.Values) (string, error) {
	msg, err := c.call(ctx, request{method: method, path: path, query: q, enveloped: true}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to call %s: %w", path, err)
	}
	return msg, nil
}

func (c *Client) syncRun(ctx context.Context, path string, q url.Values) (*SyncResult, error) {
	var result SyncResult
	msg, err := c.call(ctx, request{method: http.MethodPost, path: path, query: q, enveloped: true}, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	if result.Message == "" {
		result.Message = msg
	}
	return &result, nil
}

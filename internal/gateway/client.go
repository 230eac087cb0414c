package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/isabella232/radosgw-agent/internal/version"
)

// Config holds what is needed to talk to one gateway site.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
}

// Client talks to the admin API of a single gateway site. A Client is safe
// for concurrent use, but by convention each pool worker owns its own pair.
type Client struct {
	http     *req.Client
	endpoint string
}

// New creates a client for one gateway site. Every request is signed with
// AWS Signature v4 using the site's credentials.
func New(cfg *Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("gateway: endpoint missing")
	}

	signer, err := sigV4Wrapper(cfg.AccessKey, cfg.SecretKey, cfg.Region)
	if err != nil {
		return nil, err
	}

	c := req.C().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetUserAgent(version.AppName+"/"+version.Version).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
	c.GetTransport().WrapRoundTripFunc(signer)

	return &Client{http: c, endpoint: cfg.Endpoint}, nil
}

// Endpoint returns the base URL this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// NumShards returns how many shards the given log type is partitioned into.
func (c *Client) NumShards(ctx context.Context, t Type) (int, error) {
	var out struct {
		NumObjects int `json:"num_objects"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("type", string(t)).
		SetSuccessResult(&out).
		Get("/admin/log")
	if err := check(resp, err, "num shards"); err != nil {
		return 0, err
	}
	return out.NumObjects, nil
}

// GetLogInfo returns the current head marker of one log shard.
func (c *Client) GetLogInfo(ctx context.Context, t Type, shard int) (*LogInfo, error) {
	var out LogInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"type": string(t),
			"id":   strconv.Itoa(shard),
			"info": "true",
		}).
		SetSuccessResult(&out).
		Get("/admin/log")
	if err := check(resp, err, fmt.Sprintf("log info shard %d", shard)); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLog fetches up to maxEntries log entries past marker for one shard.
// Returns ErrNotFound when no entries exist past the marker.
func (c *Client) GetLog(ctx context.Context, t Type, shard int, marker string, maxEntries int) ([]LogEntry, error) {
	var out []LogEntry
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"type":        string(t),
			"id":          strconv.Itoa(shard),
			"marker":      marker,
			"max-entries": strconv.Itoa(maxEntries),
		}).
		SetSuccessResult(&out).
		Get("/admin/log/entries")
	if err := check(resp, err, fmt.Sprintf("log entries shard %d", shard)); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBound fetches the replica log bound of one shard.
// Returns ErrNotFound when no bound has been written yet.
func (c *Client) GetBound(ctx context.Context, t Type, shard int) (*Bound, error) {
	var out Bound
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"type": string(t),
			"id":   strconv.Itoa(shard),
		}).
		SetSuccessResult(&out).
		Get("/admin/replica_log")
	if err := check(resp, err, fmt.Sprintf("get bound shard %d", shard)); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetBound updates the replica log bound of one shard. The replica log only
// supports updating an existing bound, never creating one.
func (c *Client) SetBound(ctx context.Context, t Type, shard int, marker string, at time.Time, daemonID string, retries []string) error {
	items := make([]RetryItem, 0, len(retries))
	for _, name := range retries {
		items = append(items, RetryItem{Name: name, Timestamp: at})
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"type":      string(t),
			"id":        strconv.Itoa(shard),
			"marker":    marker,
			"time":      at.UTC().Format(time.RFC3339),
			"daemon_id": daemonID,
		}).
		SetBody(items).
		Post("/admin/replica_log")
	return check(resp, err, fmt.Sprintf("set bound shard %d", shard))
}

// LockShard takes an advisory lease on one log shard of the destination.
func (c *Client) LockShard(ctx context.Context, t Type, shard int, lockID string, duration time.Duration) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"type":      string(t),
			"id":        strconv.Itoa(shard),
			"locker-id": lockID,
			"length":    strconv.Itoa(int(duration.Seconds())),
		}).
		Post("/admin/log/lock")
	return check(resp, err, fmt.Sprintf("lock shard %d", shard))
}

// UnlockShard releases the advisory lease on one log shard.
func (c *Client) UnlockShard(ctx context.Context, t Type, shard int, lockID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"type":      string(t),
			"id":        strconv.Itoa(shard),
			"locker-id": lockID,
		}).
		Post("/admin/log/unlock")
	return check(resp, err, fmt.Sprintf("unlock shard %d", shard))
}

// ListBuckets returns the names of every bucket known to the site.
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	var out []string
	resp, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		Get("/admin/metadata/bucket")
	if err := check(resp, err, "list buckets"); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMetadataSections returns every metadata section the site serves.
func (c *Client) ListMetadataSections(ctx context.Context) ([]string, error) {
	var out []string
	resp, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		Get("/admin/metadata")
	if err := check(resp, err, "list metadata sections"); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMetadataKeys returns every key within one metadata section.
// Returns ErrNotFound when the section has no keys.
func (c *Client) ListMetadataKeys(ctx context.Context, section string) ([]string, error) {
	var out []string
	resp, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		SetPathParam("section", section).
		Get("/admin/metadata/{section}")
	if err := check(resp, err, fmt.Sprintf("list metadata keys %s", section)); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMetadata fetches the raw document of one metadata entry.
func (c *Client) GetMetadata(ctx context.Context, section, key string) (json.RawMessage, error) {
	var out json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		SetPathParam("section", section).
		SetQueryParam("key", key).
		Get("/admin/metadata/{section}/entry")
	if err := check(resp, err, fmt.Sprintf("get metadata %s:%s", section, key)); err != nil {
		return nil, err
	}
	return out, nil
}

// PutMetadata stores the raw document of one metadata entry.
func (c *Client) PutMetadata(ctx context.Context, section, key string, data json.RawMessage) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("section", section).
		SetQueryParam("key", key).
		SetBodyJsonBytes(data).
		Put("/admin/metadata/{section}/entry")
	return check(resp, err, fmt.Sprintf("put metadata %s:%s", section, key))
}

// ListObjects returns one page of object keys of a bucket, starting after
// marker. Returns ErrNotFound when the bucket has no objects past marker.
func (c *Client) ListObjects(ctx context.Context, bucket, marker string, maxKeys int) (*ObjectList, error) {
	var out ObjectList
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"bucket":   bucket,
			"marker":   marker,
			"max-keys": strconv.Itoa(maxKeys),
		}).
		SetSuccessResult(&out).
		Get("/admin/bucket/index")
	if err := check(resp, err, fmt.Sprintf("list objects %s", bucket)); err != nil {
		return nil, err
	}
	return &out, nil
}

// CopyObject asks this site to fetch one object from the named source zone.
func (c *Client) CopyObject(ctx context.Context, bucket, key, sourceZone string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("bucket", bucket).
		SetPathParam("key", key).
		SetQueryParam("rgwx-source-zone", sourceZone).
		SetHeader("x-amz-copy-source", "/"+bucket+"/"+key).
		Put("/{bucket}/{key}")
	return check(resp, err, fmt.Sprintf("copy object %s/%s", bucket, key))
}

package domain

import (
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// StoredAsset represents one blob persisted to remote storage. The storage
// provider is authoritative for everything here; callers treat listings as a
// cache that is refetched rather than trusted across restarts.
type StoredAsset struct {
	AssetID      string    `json:"assetId"`
	DisplayName  string    `json:"displayName"`
	ContainerID  string    `json:"containerId,omitempty"`
	SourceURL    string    `json:"sourceUrl,omitempty"`
	PublicURL    string    `json:"publicUrl"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	MIMEType     string    `json:"mimeType,omitempty"`
	SizeBytes    int64     `json:"sizeBytes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SortAssetsByName orders assets by display name using locale-neutral
// collation, so listings sort the way a file browser would rather than by
// raw byte order. A fresh collator is created per call because collators are
// not safe for concurrent use.
func SortAssetsByName(assets []StoredAsset) {
	c := collate.New(language.Und)
	sort.SliceStable(assets, func(i, j int) bool {
		return c.CompareString(assets[i].DisplayName, assets[j].DisplayName) < 0
	})
}

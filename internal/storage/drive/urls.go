package drive

import "net/url"

// PublicURL derives the stable, publicly viewable URL for an asset. It is a
// pure function of the asset id; no network round trip is needed and the
// link does not expire.
func PublicURL(assetID string) string {
	return "https://drive.google.com/uc?export=view&id=" + url.QueryEscape(assetID)
}

// ThumbnailURL derives a 400px-wide preview URL for an asset, following the
// same rules as PublicURL.
func ThumbnailURL(assetID string) string {
	return "https://drive.google.com/thumbnail?id=" + url.QueryEscape(assetID) + "&sz=w400"
}

package models

// ImageParams identifies one stored image.
type ImageParams struct {
	Id string `path:"id" binding:"required"`
}

type ImageListResponse struct {
	Images []string `json:"images"`
	Count  int      `json:"count"`
}

type DeleteImageResponse struct {
	Deleted bool `json:"deleted"`
}

// PurgeRequest selects stored images for deletion. AgeDays == 0 purges
// every image matching the optional group filter.
type PurgeRequest struct {
	AgeDays int    `json:"ageDays" binding:"min=0"`
	Group   string `json:"group,omitempty"`
}

type PurgeResponse struct {
	Deleted int `json:"deleted"`
}

type HealthResponse struct {
	Status            string `json:"status"`
	SecretFingerprint string `json:"secretFingerprint"`
}

// Package storage provides database models and repositories for the Asset Engine.
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssetStatus represents the lifecycle status of a document asset.
type AssetStatus string

const (
	AssetStatusUploading AssetStatus = "uploading"
	AssetStatusCompleted AssetStatus = "completed"
	// AssetStatusFailed exists for completeness; a failed mandatory stage
	// retracts the record instead of persisting this status.
	AssetStatusFailed AssetStatus = "failed"
)

// ThumbnailKind identifies the format of a derived cover thumbnail.
type ThumbnailKind string

const (
	ThumbnailKindSVG ThumbnailKind = "svg"
)

// PageAsset is one rendered page of a document.
type PageAsset struct {
	PageNumber int    `json:"pageNumber"`
	AssetURL   string `json:"assetUrl"`
}

// PageAssetList is a JSON-encoded column of page assets.
type PageAssetList []PageAsset

// Value implements driver.Valuer.
func (l PageAssetList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *PageAssetList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// TextSpan is one positioned text fragment extracted from a page.
type TextSpan struct {
	Text     string  `json:"text"`
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"w"`
	Height   float64 `json:"h"`
	FontSize float64 `json:"fontSize"`
	FontName string  `json:"fontName"`
}

// TextSpanList is a JSON-encoded column of text spans.
type TextSpanList []TextSpan

// Value implements driver.Valuer.
func (l TextSpanList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *TextSpanList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}

// DocumentAsset is the persisted record describing a document and its
// derived assets. It is mutated only by the ingestion pipeline.
type DocumentAsset struct {
	ID            uuid.UUID
	OwnerID       string
	DisplayName   string
	StorageKey    string
	SizeBytes     int64
	UploadedAt    time.Time
	Status        AssetStatus
	ContentHash   string
	ThumbnailURL  string
	ThumbnailKind ThumbnailKind
	PageCount     *int
	PageAssets    PageAssetList
	OCRText       string
	TextSpans     TextSpanList
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AssetUpdate carries the partial fields of a single merge write. A nil
// field means "leave unchanged"; derivation stages that failed simply
// never set their field.
type AssetUpdate struct {
	Status        *AssetStatus
	ContentHash   *string
	ThumbnailURL  *string
	ThumbnailKind *ThumbnailKind
	PageAssets    PageAssetList
	PageCount     *int
	OCRText       *string
	TextSpans     TextSpanList
}

// IsEmpty reports whether the update would write nothing.
func (u AssetUpdate) IsEmpty() bool {
	return u.Status == nil &&
		u.ContentHash == nil &&
		u.ThumbnailURL == nil &&
		u.ThumbnailKind == nil &&
		u.PageAssets == nil &&
		u.PageCount == nil &&
		u.OCRText == nil &&
		u.TextSpans == nil
}

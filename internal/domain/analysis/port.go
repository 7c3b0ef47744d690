package analysis

import "context"

// Vision port (interface untuk inference provider)
type Vision interface {
	Identify(ctx context.Context, img SourceImage) (string, error)
}

// Repository port (interface untuk persistence). Every read and delete is
// scoped by owner: a record is only visible to the user that created it.
type Repository interface {
	Save(ctx context.Context, rec *AnalysisRecord) error
	Get(ctx context.Context, owner string, id RecordID) (*AnalysisRecord, error)
	Latest(ctx context.Context, owner string, limit int) ([]*AnalysisRecord, error)
	Delete(ctx context.Context, owner string, id RecordID) error
}

// ImageStore port (interface untuk object storage). Upload returns a public
// URL for the stored image.
type ImageStore interface {
	Upload(ctx context.Context, owner, filename string, img SourceImage) (string, error)
}

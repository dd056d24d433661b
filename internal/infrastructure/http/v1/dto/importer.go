package dto

// ImportForm is the non-file part of the multipart import request.
type ImportForm struct {
	Format        string `form:"format" binding:"omitempty,oneof=csv xlsx CSV XLSX"`
	Tag           string `form:"tag" binding:"max=100"`
	CreateSegment bool   `form:"createSegment"`
	SegmentName   string `form:"segmentName" binding:"max=200"`
	DefaultStatus string `form:"defaultStatus"`
}

// ExportQuery is the query string of POST /profiles/export.
type ExportQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=csv xlsx"`
}

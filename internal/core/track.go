package core

// Track represents the currently loaded audio item.
//
// Every field is optional; mid-transition events frequently carry only a
// subset of the metadata.
type Track struct {
	URI    string `json:"uri,omitempty"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	ArtURI string `json:"art_uri,omitempty"`
}

// IsZero returns true if the track carries no information at all.
func (t *Track) IsZero() bool {
	return t == nil || (t.URI == "" && t.Title == "" && t.Artist == "" && t.Album == "" && t.ArtURI == "")
}

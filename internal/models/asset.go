package models

// Asset is an uploaded source image tracked by name on both sides.
type Asset struct {
	Name string
	// RemotePresent is set once the service acknowledged the upload.
	RemotePresent bool
}

// UploadResponse mirrors POST /api/upload. The service silently drops files
// whose extension is not on its allow-list, so Uploaded may be shorter than
// the request.
type UploadResponse struct {
	Uploaded []string `json:"uploaded"`
	Error    string   `json:"error,omitempty"`
}

// DeleteResponse mirrors POST /api/delete_file.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

package dto

// ErrorResponse is the body of every non-2xx response. Messages are generic;
// the failing step is logged, never returned.
type ErrorResponse struct {
	Message string `json:"message"`
}

// FileResponse is returned by every upload endpoint.
type FileResponse struct {
	FilePath string `json:"file_path"`
}

type ConnectionRequest struct {
	Connected *bool `json:"connected"`
}

type ConnectionResponse struct {
	ConnectionID string `json:"connection_id"`
}

type ConnectedCountResponse struct {
	VisitorID      string `json:"visitor_id"`
	ConnectedCount int    `json:"connected_count"`
}

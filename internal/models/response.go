package models

// ErrorResponse represents error response format
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	Field         string `json:"field,omitempty"`
	CurrentStatus string `json:"current_status,omitempty"`
	Requested     string `json:"requested,omitempty"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: message, Code: code}
}

// CampaignPage is one page of a campaign listing
type CampaignPage struct {
	Results []Campaign `json:"results"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

// IsEmpty checks if the page holds no results
func (p CampaignPage) IsEmpty() bool {
	return len(p.Results) == 0
}

// DataResponse wraps successful payloads as {"data": ...}
type DataResponse struct {
	Data interface{} `json:"data"`
}

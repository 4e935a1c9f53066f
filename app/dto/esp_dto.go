package dto

// ConnectESPRequest represents the request to connect a profile to the ESP by
// exchanging an OAuth authorization code
type ConnectESPRequest struct {
	ProfileID uint   `json:"-"`
	Code      string `json:"code" validate:"required,min=1"`
}

// ConnectESPResponse represents the response to an ESP connect
type ConnectESPResponse struct {
	Message   string `json:"message"`
	Connected bool   `json:"connected"`
}

// DisconnectESPRequest represents the request to drop the stored ESP credential
type DisconnectESPRequest struct {
	ProfileID uint `json:"-"`
}

// DisconnectESPResponse represents the response to an ESP disconnect
type DisconnectESPResponse struct {
	Message string `json:"message"`
}

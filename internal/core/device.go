package core

// ServiceEndpoints holds the resolved URLs for one UPnP service.
type ServiceEndpoints struct {
	ControlURL string `json:"control_url"`
	EventURL   string `json:"event_url"`
}

// Descriptor identifies a streamer and its discovered service endpoints.
//
// Built once at connect time from the device description document; immutable
// until the device is rediscovered.
type Descriptor struct {
	UDN          string `json:"udn"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	BaseURL      string `json:"base_url"`

	AVTransport       *ServiceEndpoints `json:"av_transport,omitempty"`
	RenderingControl  *ServiceEndpoints `json:"rendering_control,omitempty"`
	ConnectionManager *ServiceEndpoints `json:"connection_manager,omitempty"`
}

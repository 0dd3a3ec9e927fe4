package models

// AssignAdminRoleRequest is the body of the assign-admin-role function.
type AssignAdminRoleRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

// DeleteAccountRequest is the body of the delete-account function. An empty
// UserID targets the caller.
type DeleteAccountRequest struct {
	UserID string `json:"userId" validate:"omitempty,uuid"`
}

// SendSMSRequest is the body of the send-sms function.
type SendSMSRequest struct {
	PhoneNumber string  `json:"phoneNumber"`
	Message     string  `json:"message"`
	StudentID   *string `json:"studentId,omitempty"`
}

// GatewayResult is the success body of assign-admin-role and delete-account.
type GatewayResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SendSMSResult is the success body of send-sms.
type SendSMSResult struct {
	Success    bool   `json:"success"`
	MessageSid string `json:"messageSid"`
}

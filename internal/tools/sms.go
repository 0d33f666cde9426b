package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the slice of the Twilio REST client the tool uses.
type messageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// SMSTool sends text messages through the Twilio Messages API.
type SMSTool struct {
	client     messageCreator
	fromNumber string
}

// NewSMSTool creates a Twilio-backed SMS tool. Without credentials the tool
// still registers but refuses to send.
func NewSMSTool(accountSID, authToken, fromNumber string) *SMSTool {
	tool := &SMSTool{fromNumber: fromNumber}
	if accountSID != "" && authToken != "" {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		tool.client = rest.Api
	}
	return tool
}

// Name implements Tool.
func (t *SMSTool) Name() string { return "send_sms" }

// Description implements Tool.
func (t *SMSTool) Description() string {
	return "Sends an SMS message to a specified phone number."
}

// Parameters implements Tool.
func (t *SMSTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"to_number": {"type": "string", "description": "The recipient's phone number in E.164 format (e.g., +15551234567)."},
			"message": {"type": "string", "description": "The content of the SMS message to send."}
		},
		"required": ["to_number", "message"]
	}`)
}

// Invoke implements Tool. Twilio's generated client does not take a context;
// it applies its own HTTP timeout.
func (t *SMSTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	toNumber, _ := args["to_number"].(string)
	message, _ := args["message"].(string)
	if strings.TrimSpace(toNumber) == "" || strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("send_sms requires to_number and message")
	}
	if t.client == nil || t.fromNumber == "" {
		return "", fmt.Errorf("sms is not configured (missing Twilio credentials)")
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(t.fromNumber)
	params.SetBody(message)

	msg, err := t.client.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("sms send failed: %w", err)
	}
	sid := ""
	if msg.Sid != nil {
		sid = *msg.Sid
	}
	return fmt.Sprintf("SMS sent successfully. Message SID: %s", sid), nil
}

package worker

import (
	"fmt"

	"github.com/lumenmail/campaignd/internal/campaign"
	"github.com/lumenmail/campaignd/internal/mailing"
	"github.com/lumenmail/campaignd/internal/tracking"
)

// Composer turns campaign content plus a recipient snapshot into a ready
// EmailMessage: Liquid personalization, click-link rewriting, preheader
// and pixel injection.
type Composer struct {
	renderer *mailing.Renderer
	signer   *tracking.Signer

	defaultFromName  string
	defaultFromEmail string
}

// NewComposer builds a Composer with sender identity fallbacks applied
// when a campaign leaves from_name/from_email blank.
func NewComposer(renderer *mailing.Renderer, signer *tracking.Signer, defaultFromName, defaultFromEmail string) *Composer {
	return &Composer{
		renderer:         renderer,
		signer:           signer,
		defaultFromName:  defaultFromName,
		defaultFromEmail: defaultFromEmail,
	}
}

// Compose renders one recipient's message. trackingID controls the pixel
// and link tokens; test sends pass a throwaway id so test opens never
// pollute campaign analytics.
func (c *Composer) Compose(camp *campaign.Campaign, email, firstName, trackingID string) (*EmailMessage, error) {
	vars := map[string]interface{}{
		"email":           email,
		"first_name":      firstName,
		"subject":         camp.Subject,
		"unsubscribe_url": c.signer.UnsubscribeURL(trackingID),
	}

	subject, err := c.renderer.Render(camp.ID+":subject", camp.Subject, vars)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	htmlBody, err := c.renderer.Render(camp.ID+":html", camp.HTMLContent, vars)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	textBody := camp.PlainContent
	if textBody != "" {
		if textBody, err = c.renderer.Render(camp.ID+":text", camp.PlainContent, vars); err != nil {
			return nil, fmt.Errorf("render text: %w", err)
		}
	}

	if htmlBody != "" {
		htmlBody = mailing.RewriteLinks(htmlBody, func(href string) string {
			return c.signer.ClickURL(trackingID, href)
		})
		htmlBody = mailing.InjectPreheader(htmlBody, camp.Preheader)
		htmlBody = mailing.InjectPixel(htmlBody, c.signer.PixelURL(trackingID))
	}
	if htmlBody != "" && textBody == "" {
		textBody = mailing.StripHTML(htmlBody)
	}

	fromName, fromEmail := camp.FromName, camp.FromEmail
	if fromName == "" {
		fromName = c.defaultFromName
	}
	if fromEmail == "" {
		fromEmail = c.defaultFromEmail
	}

	return &EmailMessage{
		CampaignID:  camp.ID,
		Email:       email,
		FromName:    fromName,
		FromEmail:   fromEmail,
		Subject:     subject,
		HTMLContent: htmlBody,
		TextContent: textBody,
	}, nil
}

// ValidateContent parses the campaign's templates, surfacing Liquid
// syntax errors before the campaign can be scheduled or sent.
func (c *Composer) ValidateContent(camp *campaign.Campaign) error {
	if err := c.renderer.Parse(camp.Subject); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	if err := c.renderer.Parse(camp.HTMLContent); err != nil {
		return fmt.Errorf("html content: %w", err)
	}
	if camp.PlainContent != "" {
		if err := c.renderer.Parse(camp.PlainContent); err != nil {
			return fmt.Errorf("plain content: %w", err)
		}
	}
	return nil
}

// Preview renders the campaign HTML with placeholder recipient values
// for the editor preview pane. Links are left as authored and no pixel
// is injected.
func (c *Composer) Preview(camp *campaign.Campaign) (string, error) {
	vars := map[string]interface{}{
		"email":           "john@example.com",
		"first_name":      "John",
		"subject":         camp.Subject,
		"unsubscribe_url": "#",
	}
	htmlBody, err := c.renderer.Render("", camp.HTMLContent, vars)
	if err != nil {
		return "", fmt.Errorf("render preview: %w", err)
	}
	return mailing.InjectPreheader(htmlBody, camp.Preheader), nil
}

// ComposeRecipient renders a queued recipient using their snapshot fields.
func (c *Composer) ComposeRecipient(camp *campaign.Campaign, r *campaign.Recipient) (*EmailMessage, error) {
	msg, err := c.Compose(camp, r.Email, r.FirstName, r.TrackingID)
	if err != nil {
		return nil, err
	}
	msg.RecipientID = r.ID
	return msg, nil
}

// InvalidateCampaign drops cached templates after a content edit.
func (c *Composer) InvalidateCampaign(campaignID string) {
	for _, part := range []string{":subject", ":html", ":text"} {
		c.renderer.Invalidate(campaignID + part)
	}
}

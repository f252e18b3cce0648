package usecase

import (
	"errors"
	"fmt"
	"strings"

	"speedliner/internal/domain/models"
	"speedliner/pkg/util"
)

const (
	hintNoCollateral    = "For this route no collateral is required."
	hintCorpCollateral  = "Corp route: Collateral applies."
	expressDeliveryNote = "Deliver within 2–4h after acceptance."
)

// RenderQuote formats a quote for display.
func RenderQuote(q models.Quote) string {
	if !q.ExpressOn {
		return fmt.Sprintf("Reward: %s ISK", util.FormatISK(q.FinalTotal))
	}
	return fmt.Sprintf("Reward (Express): %s ISK\nBasis: %s ISK · +100%% Express",
		util.FormatISK(q.FinalTotal), util.FormatISK(q.BaseTotal))
}

// RenderError returns the user-facing message for a calculation error.
func RenderError(err error) string {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}

// CollateralHint is the tooltip shown on the collateral field for a route.
func CollateralHint(route models.Route) string {
	switch {
	case route.NoCollateral:
		return hintNoCollateral
	case route.IsCorpRoute():
		return hintCorpCollateral
	default:
		return ""
	}
}

// BuildExpressRequest turns an express quote into the submission record,
// mail subject and body included.
func BuildExpressRequest(q models.Quote, id models.Identity, note string) *models.ExpressRequest {
	req := &models.ExpressRequest{
		Express:          true,
		Route:            q.RouteLabel,
		RewardISK:        q.FinalTotal,
		VolumeM3:         q.Volume,
		CollateralISK:    q.Collateral,
		Notes:            note,
		CustomerCharID:   id.CharacterID,
		CustomerCharName: id.CharacterName,
	}
	req.Subject = MailSubject(req)
	req.Body = MailBody(req)
	return req
}

// MailSubject is the subject line of the express courier mail.
func MailSubject(req *models.ExpressRequest) string {
	return fmt.Sprintf("EXPRESS: %s — %s ISK", req.Route, util.FormatISK(req.RewardISK))
}

// MailBody renders the express courier mail body.
func MailBody(req *models.ExpressRequest) string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "EXPRESS — PRIORITY COURIER")
	fmt.Fprintf(b, "Route: %s\n", req.Route)
	fmt.Fprintf(b, "Reward: %s ISK\n", util.FormatISK(req.RewardISK))
	if req.CollateralISK > 0 {
		fmt.Fprintf(b, "Collateral: %s ISK\n", util.FormatISK(req.CollateralISK))
	}
	fmt.Fprintf(b, "Volume: %s\n", util.FormatVolume(req.VolumeM3))
	fmt.Fprintf(b, "Days to complete: %d\n", models.DaysExpress)
	fmt.Fprintln(b, expressDeliveryNote)
	if req.CustomerCharName != "" {
		fmt.Fprintf(b, "\nRequested by: %s (%d)\n", req.CustomerCharName, req.CustomerCharID)
	}
	if strings.TrimSpace(req.Notes) != "" {
		fmt.Fprintf(b, "\nNotes:\n%s\n", req.Notes)
	}
	return b.String()
}

package services

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/culsys/valet-service/internal/backends/folio"
	"github.com/culsys/valet-service/internal/bib"
)

// butlerServicePointID is the pickup service point recalls are held at.
// Pickup selection is not yet offered on the form.
const butlerServicePointID = "cb457737-6d17-4046-8c98-315cd9b70f9f"

// RecallClient is the slice of the ILS client that placing a recall
// needs.
type RecallClient interface {
	GetUserByUsername(ctx context.Context, username string) (*folio.User, error)
	GetBlocks(ctx context.Context, userID string) ([]string, error)
	GetInstanceByHRID(ctx context.Context, hrid string) (*folio.Instance, error)
	GetItem(ctx context.Context, itemID string) (*folio.Item, error)
	PostRecall(ctx context.Context, recall folio.RecallRequest) (*folio.RecallResponse, error)
}

// Recall places a hold-shelf recall on a checked-out item through the
// ILS circulation module.
type Recall struct {
	Base
	Folio     RecallClient
	Endpoints Endpoints
}

func (s *Recall) BibEligible(ctx context.Context, req *Request) Eligibility {
	if req.Record.OwningInstitution != "CUL" {
		return Ineligible("Recall requests can only be made for Columbia Library items.")
	}

	resolution := req.Availability(ctx)
	if resolution.CheckedOutCount(req.Record.Holdings) == 0 {
		return Ineligible("This record has no checked-out items. Recall requests can only be made against checked-out items.")
	}
	return Eligible
}

func (s *Recall) FormLocals(ctx context.Context, req *Request) (Locals, error) {
	return Locals{
		"bib_record":   req.Record,
		"availability": req.Availability(ctx).Statuses(),
	}, nil
}

// Submit places the recall. The form supplies only the bib and item
// ids; the requester, instance, and holdings identifiers come from ILS
// lookups.
func (s *Recall) Submit(ctx context.Context, req *Request) error {
	user, err := s.Folio.GetUserByUsername(ctx, req.User.Username)
	if err != nil {
		return err
	}

	// The circulation module would reject the request anyway; checking
	// first lets the patron see their block messages instead of a
	// generic refusal.
	blocks, err := s.Folio.GetBlocks(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(blocks) > 0 {
		return bib.NewExternalAPIError("folio", http.StatusUnprocessableEntity,
			"Your borrowing account is blocked: "+strings.Join(blocks, "; "), nil)
	}

	instance, err := s.Folio.GetInstanceByHRID(ctx, req.Record.ID())
	if err != nil {
		return err
	}

	itemID := req.Param("item_id")
	item, err := s.Folio.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	placed, err := s.Folio.PostRecall(ctx, folio.RecallRequest{
		RequestLevel:          "Item",
		RequestType:           "Recall",
		InstanceID:            instance.ID,
		HoldingsRecordID:      item.HoldingsRecordID,
		ItemID:                itemID,
		RequesterID:           user.ID,
		FulfillmentPreference: "Hold Shelf",
		PickupServicePointID:  butlerServicePointID,
		RequestDate:           time.Now().Format("2006-01-02"),
	})
	if err != nil {
		return err
	}

	req.SubmitResult = placed
	return nil
}

func (s *Recall) ConfirmationLocals(_ context.Context, req *Request) (Locals, error) {
	locals := Locals{
		"bib_record":               req.Record,
		"my_borrowing_account_url": s.Endpoints.MyAccountURL,
	}
	if placed, ok := req.SubmitResult.(*folio.RecallResponse); ok {
		locals["title"] = placed.Instance.Title
		locals["call_number"] = placed.Item.CallNumber
		locals["barcode"] = placed.Item.Barcode
		locals["pickup"] = placed.PickupServicePoint.DiscoveryDisplayName
		locals["status"] = placed.Status
	}
	return locals, nil
}

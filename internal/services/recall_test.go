package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culsys/valet-service/internal/backends/folio"
	"github.com/culsys/valet-service/internal/bib"
)

type fakeRecallClient struct {
	recall    folio.RecallRequest
	fail      error
	blocks    []string
	blocksErr error
}

func (f *fakeRecallClient) GetUserByUsername(_ context.Context, username string) (*folio.User, error) {
	return &folio.User{ID: "user-uuid", Username: username}, nil
}

func (f *fakeRecallClient) GetBlocks(_ context.Context, userID string) ([]string, error) {
	return f.blocks, f.blocksErr
}

func (f *fakeRecallClient) GetInstanceByHRID(_ context.Context, hrid string) (*folio.Instance, error) {
	return &folio.Instance{ID: "instance-uuid", HRID: hrid}, nil
}

func (f *fakeRecallClient) GetItem(_ context.Context, itemID string) (*folio.Item, error) {
	item := &folio.Item{ID: itemID, HoldingsRecordID: "holdings-uuid"}
	item.Status.Name = "Checked out"
	return item, nil
}

func (f *fakeRecallClient) PostRecall(_ context.Context, recall folio.RecallRequest) (*folio.RecallResponse, error) {
	f.recall = recall
	if f.fail != nil {
		return nil, f.fail
	}
	placed := &folio.RecallResponse{ID: "request-uuid", Status: "Open - Not yet filled"}
	placed.Instance.Title = "Structures"
	placed.Item.Barcode = "BC100"
	placed.Item.CallNumber = "AB123 .C45"
	placed.PickupServicePoint.DiscoveryDisplayName = "Butler Circulation Desk"
	return placed, nil
}

func TestRecallEligibilityGates(t *testing.T) {
	def := &Definition{Key: "recall", Type: TypeForm}
	s := &Recall{Base: Base{Def: def}, Folio: &fakeRecallClient{}}

	// Nothing checked out: nothing to recall.
	resolver := testResolver(map[string]string{"i1": "Available", "i2": "Available"})
	req := NewRequest(def, testRecord(t), nil, nil, resolver)
	eligibility := s.BibEligible(context.Background(), req)
	assert.False(t, eligibility.OK)
	assert.Contains(t, eligibility.Reason, "no checked-out items")

	resolver = testResolver(map[string]string{"i1": "Checked out", "i2": "Available"})
	req = NewRequest(def, testRecord(t), nil, nil, resolver)
	assert.True(t, s.BibEligible(context.Background(), req).OK)
}

func TestRecallRejectsPartnerRecords(t *testing.T) {
	raw := partnerRecordRaw()
	record := bib.NewRecord(raw, nil)

	def := &Definition{Key: "recall"}
	s := &Recall{Base: Base{Def: def}, Folio: &fakeRecallClient{}}

	req := NewRequest(def, record, nil, nil, testResolver(nil))
	eligibility := s.BibEligible(context.Background(), req)
	assert.False(t, eligibility.OK)
	assert.Contains(t, eligibility.Reason, "Columbia Library items")
}

func TestRecallSubmit(t *testing.T) {
	def := &Definition{Key: "recall"}
	client := &fakeRecallClient{}
	s := &Recall{Base: Base{Def: def}, Folio: client, Endpoints: Endpoints{MyAccountURL: "https://clio.example.edu/my_account"}}

	params := url.Values{"item_id": []string{"item-uuid"}}
	user := &User{Username: "ab1234", Email: "ab1234@example.edu"}
	req := NewRequest(def, testRecord(t), user, params, nil)

	require.NoError(t, s.Submit(context.Background(), req))

	assert.Equal(t, "Item", client.recall.RequestLevel)
	assert.Equal(t, "Recall", client.recall.RequestType)
	assert.Equal(t, "instance-uuid", client.recall.InstanceID)
	assert.Equal(t, "holdings-uuid", client.recall.HoldingsRecordID)
	assert.Equal(t, "item-uuid", client.recall.ItemID)
	assert.Equal(t, "user-uuid", client.recall.RequesterID)
	assert.Equal(t, "Hold Shelf", client.recall.FulfillmentPreference)
	assert.Equal(t, butlerServicePointID, client.recall.PickupServicePointID)
	assert.Equal(t, time.Now().Format("2006-01-02"), client.recall.RequestDate)

	locals, err := s.ConfirmationLocals(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Structures", locals["title"])
	assert.Equal(t, "Butler Circulation Desk", locals["pickup"])
	assert.Equal(t, "https://clio.example.edu/my_account", locals["my_borrowing_account_url"])
}

func TestRecallSubmitRefusesBlockedPatron(t *testing.T) {
	def := &Definition{Key: "recall"}
	client := &fakeRecallClient{blocks: []string{"Maximum fine amount exceeded", "Too many lost items"}}
	s := &Recall{Base: Base{Def: def}, Folio: client}

	params := url.Values{"item_id": []string{"item-uuid"}}
	req := NewRequest(def, testRecord(t), &User{Username: "ab1234"}, params, nil)

	err := s.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Your borrowing account is blocked: Maximum fine amount exceeded; Too many lost items")
	assert.Empty(t, client.recall.ItemID, "no request is placed for a blocked patron")
}

func TestRecallSubmitSurfacesCirculationError(t *testing.T) {
	def := &Definition{Key: "recall"}
	client := &fakeRecallClient{fail: bib.NewExternalAPIError("folio", 422, "Recall requests are not allowed for this patron and item combination", nil)}
	s := &Recall{Base: Base{Def: def}, Folio: client}

	params := url.Values{"item_id": []string{"item-uuid"}}
	req := NewRequest(def, testRecord(t), &User{Username: "ab1234"}, params, nil)

	err := s.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed for this patron")
	assert.Nil(t, req.SubmitResult)
}

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"plantstore-be/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*STKPushResponse), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*STKQueryResponse), args.Error(1)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, p *PendingPayment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockRepository) GetByCheckoutRequestID(ctx context.Context, id string) (*PendingPayment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PendingPayment), args.Error(1)
}

func (m *MockRepository) Settle(ctx context.Context, in SettleParams, materialize MaterializeFunc) (*PendingPayment, error) {
	args := m.Called(ctx, in, materialize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PendingPayment), args.Error(1)
}

func (m *MockRepository) MarkFailed(ctx context.Context, id string, code int, desc string, payload []byte) (bool, error) {
	args := m.Called(ctx, id, code, desc, payload)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkForReview(ctx context.Context, in ReviewParams) (bool, error) {
	args := m.Called(ctx, in)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, f ListFilter) ([]PendingPayment, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PendingPayment), args.Error(1)
}

func testDraft(t *testing.T) *order.Draft {
	t.Helper()
	var d order.Draft
	require.NoError(t, json.Unmarshal([]byte(testDraftJSON), &d))
	return &d
}

func TestService_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("Accepted push creates pending record", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockRepository)
		svc := NewService(repo, gw, "PlantStore")

		gw.On("STKPush", ctx, STKPushRequest{
			PhoneNumber:      "254712345678",
			Amount:           1500,
			AccountReference: "PlantStore",
			Description:      "Payment for plant order",
		}).Return(&STKPushResponse{
			MerchantRequestID: "m-1",
			CheckoutRequestID: "ws_CO_1",
			ResponseCode:      "0",
		}, nil)

		repo.On("Create", ctx, mock.MatchedBy(func(p *PendingPayment) bool {
			d, err := p.Draft()
			return err == nil &&
				p.CheckoutRequestID == "ws_CO_1" &&
				p.MerchantRequestID == "m-1" &&
				p.PhoneNumber == "254712345678" &&
				p.Amount == 1500 &&
				p.Status == StatusPending &&
				len(d.Items) == 2
		})).Return(nil)

		id, err := svc.Initiate(ctx, InitiateRequest{PhoneNumber: "0712345678", Amount: 1500, OrderData: testDraft(t)})
		require.NoError(t, err)
		assert.Equal(t, "ws_CO_1", id)
		gw.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	invalid := []struct {
		name string
		req  func(t *testing.T) InitiateRequest
	}{
		{"Missing phone", func(t *testing.T) InitiateRequest {
			return InitiateRequest{PhoneNumber: " ", Amount: 1500, OrderData: testDraft(t)}
		}},
		{"Zero amount", func(t *testing.T) InitiateRequest {
			return InitiateRequest{PhoneNumber: "0712345678", Amount: 0, OrderData: testDraft(t)}
		}},
		{"Missing draft", func(t *testing.T) InitiateRequest {
			return InitiateRequest{PhoneNumber: "0712345678", Amount: 1500}
		}},
		{"Malformed draft", func(t *testing.T) InitiateRequest {
			d := testDraft(t)
			d.PickupLocation = ""
			return InitiateRequest{PhoneNumber: "0712345678", Amount: 1500, OrderData: d}
		}},
		{"Amount differs from items", func(t *testing.T) InitiateRequest {
			return InitiateRequest{PhoneNumber: "0712345678", Amount: 1, OrderData: testDraft(t)}
		}},
		{"Fractional shillings", func(t *testing.T) InitiateRequest {
			d := testDraft(t)
			d.Items = d.Items[:1]
			d.Items[0].Quantity = 1
			d.Items[0].Price = 1500.40
			return InitiateRequest{PhoneNumber: "0712345678", Amount: 1500.40, OrderData: d}
		}},
		{"Below one shilling", func(t *testing.T) InitiateRequest {
			d := testDraft(t)
			d.Items = d.Items[:1]
			d.Items[0].Quantity = 1
			d.Items[0].Price = 0.4
			return InitiateRequest{PhoneNumber: "0712345678", Amount: 0.4, OrderData: d}
		}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(MockGateway)
			repo := new(MockRepository)
			svc := NewService(repo, gw, "PlantStore")

			_, err := svc.Initiate(ctx, tt.req(t))
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.NotErrorIs(t, err, ErrPaymentInitiationFailed)
			gw.AssertNotCalled(t, "STKPush", mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}

	t.Run("Rejected push creates nothing", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockRepository)
		svc := NewService(repo, gw, "PlantStore")

		gw.On("STKPush", ctx, mock.Anything).
			Return(nil, &GatewayError{Op: "stk_push", StatusCode: 400, Code: "400.002.02", Message: "Invalid PhoneNumber"})

		_, err := svc.Initiate(ctx, InitiateRequest{PhoneNumber: "0712345678", Amount: 1500, OrderData: testDraft(t)})
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
		assert.ErrorIs(t, err, ErrPaymentInitiationFailed)

		var gwErr *GatewayError
		assert.True(t, errors.As(err, &gwErr))
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Persistence failure after accepted push", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockRepository)
		svc := NewService(repo, gw, "PlantStore")

		gw.On("STKPush", ctx, mock.Anything).Return(&STKPushResponse{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}, nil)
		repo.On("Create", ctx, mock.Anything).Return(errors.New("db down"))

		_, err := svc.Initiate(ctx, InitiateRequest{PhoneNumber: "0712345678", Amount: 1500, OrderData: testDraft(t)})
		assert.ErrorIs(t, err, ErrPersistenceFailure)
		assert.ErrorIs(t, err, ErrPaymentInitiationFailed)
		assert.NotErrorIs(t, err, ErrGatewayUnavailable)
	})
}

func TestWholeShillings(t *testing.T) {
	tests := []struct {
		amount float64
		want   int64
		ok     bool
	}{
		{1500, 1500, true},
		{1, 1, true},
		{999.999, 1000, true},
		{1500.40, 0, false},
		{999.5, 0, false},
		{0.4, 0, false},
		{0, 0, false},
		{-5, 0, false},
	}
	for _, tt := range tests {
		got, ok := WholeShillings(tt.amount)
		assert.Equal(t, tt.ok, ok, "amount %v", tt.amount)
		assert.Equal(t, tt.want, got, "amount %v", tt.amount)
	}
}

func TestService_GetPayment(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockGateway), "PlantStore")

	repo.On("GetByCheckoutRequestID", mock.Anything, "ws_CO_1").Return(pendingPayment("ws_CO_1"), nil)

	p, err := svc.GetPayment(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)

	_, err = svc.GetPayment(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_QueryGateway(t *testing.T) {
	gw := new(MockGateway)
	svc := NewService(new(MockRepository), gw, "PlantStore")

	gw.On("QueryStatus", mock.Anything, "ws_CO_1").Return(&STKQueryResponse{ResultCode: "0"}, nil)

	resp, err := svc.QueryGateway(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, "0", resp.ResultCode)
}

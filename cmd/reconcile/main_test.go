package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"plantstore-be/internal/auth"
	"plantstore-be/internal/payment"
	"plantstore-be/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Initiate(ctx context.Context, req payment.InitiateRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockService) GetPayment(ctx context.Context, id string) (*payment.PendingPayment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*payment.PendingPayment)
	return p, args.Error(1)
}

func (m *MockService) ListPayments(ctx context.Context, f payment.ListFilter) ([]payment.PendingPayment, error) {
	args := m.Called(ctx, f)
	p, _ := args.Get(0).([]payment.PendingPayment)
	return p, args.Error(1)
}

func (m *MockService) QueryGateway(ctx context.Context, id string) (*payment.STKQueryResponse, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*payment.STKQueryResponse)
	return r, args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) HandleCallback(ctx context.Context, cb *payment.STKCallback, raw []byte) (payment.Outcome, error) {
	args := m.Called(ctx, cb, raw)
	return args.Get(0).(payment.Outcome), args.Error(1)
}

func (m *MockReconciler) Retry(ctx context.Context, id string) (payment.Outcome, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payment.Outcome), args.Error(1)
}

func execute(t *testing.T, b *backend, stdin string, args ...string) (string, error) {
	t.Helper()
	closed := false
	b.close = func() { closed = true }

	cmd := newRootCmd(func(ctx context.Context) (*backend, error) { return b, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	if len(args) > 0 && args[0] != "hash-password" && err == nil {
		assert.True(t, closed, "backend should be closed")
	}
	return out.String(), err
}

func TestList(t *testing.T) {
	svc := new(MockService)
	b := &backend{payments: svc}

	pending := payment.StatusPending
	svc.On("ListPayments", mock.Anything, payment.ListFilter{Status: &pending, NeedsReview: true, Limit: 10}).
		Return([]payment.PendingPayment{{
			CheckoutRequestID: "ws_CO_1",
			Status:            payment.StatusPending,
			Amount:            1500,
			PhoneNumber:       "254712345678",
			MpesaReceipt:      utils.StrPtr("QKH1ABC"),
			ReviewReason:      utils.StrPtr("insert order: duplicate key"),
			CreatedAt:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		}}, nil).Once()

	out, err := execute(t, b, "", "list", "--status", "pending", "--review", "--limit", "10")
	require.NoError(t, err)

	assert.Contains(t, out, "CHECKOUT ID")
	assert.Contains(t, out, "ws_CO_1")
	assert.Contains(t, out, "1500.00")
	assert.Contains(t, out, "QKH1ABC")
	assert.Contains(t, out, "insert order: duplicate key")
	svc.AssertExpectations(t)
}

func TestListBadStatus(t *testing.T) {
	_, err := execute(t, &backend{payments: new(MockService)}, "", "list", "--status", "refunded")
	assert.ErrorIs(t, err, payment.ErrInvalidRequest)
}

func TestRetry(t *testing.T) {
	t.Run("Completed", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("Retry", mock.Anything, "ws_CO_1").Return(payment.OutcomeCompleted, nil).Once()

		out, err := execute(t, &backend{reconciler: rec}, "", "retry", "ws_CO_1")
		require.NoError(t, err)
		assert.Equal(t, "ws_CO_1: completed\n", out)
	})

	t.Run("AlreadySettled", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("Retry", mock.Anything, "ws_CO_1").Return(payment.Outcome(""), payment.ErrNotPending).Once()

		_, err := execute(t, &backend{reconciler: rec}, "", "retry", "ws_CO_1")
		assert.ErrorContains(t, err, "already settled")
	})

	t.Run("NoReceipt", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("Retry", mock.Anything, "ws_CO_1").Return(payment.Outcome(""), payment.ErrNotRetryable).Once()

		_, err := execute(t, &backend{reconciler: rec}, "", "retry", "ws_CO_1")
		assert.ErrorContains(t, err, "no confirmed receipt")
	})

	t.Run("MissingArg", func(t *testing.T) {
		_, err := execute(t, &backend{}, "", "retry")
		assert.Error(t, err)
	})
}

func TestQuery(t *testing.T) {
	svc := new(MockService)
	svc.On("QueryGateway", mock.Anything, "ws_CO_1").Return(&payment.STKQueryResponse{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        "1032",
		ResultDesc:        "Request cancelled by user",
	}, nil).Once()

	out, err := execute(t, &backend{payments: svc}, "", "query", "ws_CO_1")
	require.NoError(t, err)
	assert.Contains(t, out, "1032")
	assert.Contains(t, out, "Request cancelled by user")
}

func TestQueryGatewayError(t *testing.T) {
	svc := new(MockService)
	svc.On("QueryGateway", mock.Anything, "ws_CO_1").Return(nil, payment.ErrGatewayUnavailable).Once()

	_, err := execute(t, &backend{payments: svc}, "", "query", "ws_CO_1")
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestBackendFactoryError(t *testing.T) {
	cmd := newRootCmd(func(ctx context.Context) (*backend, error) {
		return nil, errors.New("failed to ping DB")
	})
	cmd.SetArgs([]string{"retry", "ws_CO_1"})
	cmd.SetOut(&bytes.Buffer{})

	assert.ErrorContains(t, cmd.Execute(), "failed to ping DB")
}

func TestHashPassword(t *testing.T) {
	t.Run("Argument", func(t *testing.T) {
		out, err := execute(t, &backend{}, "", "hash-password", "pothos")
		require.NoError(t, err)
		assert.True(t, auth.CheckPasswordHash("pothos", strings.TrimSpace(out)))
	})

	t.Run("Stdin", func(t *testing.T) {
		out, err := execute(t, &backend{}, "fern\n", "hash-password")
		require.NoError(t, err)
		assert.True(t, auth.CheckPasswordHash("fern", strings.TrimSpace(out)))
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := execute(t, &backend{}, "\n", "hash-password")
		assert.Error(t, err)
	})
}

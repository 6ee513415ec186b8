package contact

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Submit(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

func TestHandlerSubmit(t *testing.T) {
	body := `{"name":"Wanjiru Kamau","email":"wanjiru@example.com","message":"Hi"}`

	tests := []struct {
		name     string
		body     string
		svcErr   error
		callsSvc bool
		wantCode int
	}{
		{"Success", body, nil, true, http.StatusOK},
		{"Invalid", body, fmt.Errorf("%w: email is invalid", ErrInvalidMessage), true, http.StatusBadRequest},
		{"DeliveryFailure", body, ErrDelivery, true, http.StatusServiceUnavailable},
		{"MalformedJSON", "{", nil, false, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			if tt.callsSvc {
				svc.On("Submit", mock.Anything, Message{
					Name:    "Wanjiru Kamau",
					Email:   "wanjiru@example.com",
					Message: "Hi",
				}).Return(tt.svcErr).Once()
			}

			req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			NewHandler(svc).Submit(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

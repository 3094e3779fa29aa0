package purchase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/services/purchase"
	"github.com/kevin07696/purchase-service/internal/testutil/fixtures"
	"github.com/kevin07696/purchase-service/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupSelector() (*purchase.CascadeSelector, *mocks.MockCascadeService, *mocks.MockBillerMappingService, *mocks.MockLogger) {
	cascades := new(mocks.MockCascadeService)
	mappings := new(mocks.MockBillerMappingService)
	logger := mocks.NewMockLogger()
	return purchase.NewCascadeSelector(cascades, mappings, logger), cascades, mappings, logger
}

func TestCascadeSelector_Build(t *testing.T) {
	billers := []domain.Biller{
		{Name: "netbilling", Supports3DS: false},
		{Name: "rocketgate", Supports3DS: true},
	}

	tests := []struct {
		name        string
		advice      domain.FraudAdvice
		serviceErr  error
		siteBillers []domain.Biller
		wantBillers []string
		wantRemoved []string
		wantCode    domain.ErrorCode
	}{
		{
			name:        "service order is kept",
			wantBillers: []string{"netbilling", "rocketgate"},
		},
		{
			name:        "forced 3DS removes billers without support",
			advice:      domain.FraudAdvice{Force3DS: true},
			wantBillers: []string{"rocketgate"},
			wantRemoved: []string{"netbilling"},
		},
		{
			name:        "service failure falls back to site billers",
			serviceErr:  errors.New("timeout"),
			siteBillers: []domain.Biller{{Name: "segpay"}},
			wantBillers: []string{"segpay"},
		},
		{
			name:       "service failure without site billers",
			serviceErr: errors.New("timeout"),
			wantCode:   domain.ErrorCodeBillerUnavailable,
		},
		{
			name:        "forced 3DS without a capable biller",
			advice:      domain.FraudAdvice{Force3DS: true},
			serviceErr:  errors.New("timeout"),
			siteBillers: []domain.Biller{{Name: "segpay"}},
			wantCode:    domain.ErrorCodeBillerUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector, cascades, _, _ := setupSelector()
			p := fixtures.NewPurchase().WithFraudAdvice(tt.advice).Build()
			site := fixtures.NewSite(p.SiteID)
			site.Billers = tt.siteBillers

			if tt.serviceErr != nil {
				cascades.On("RetrieveCascade", mock.Anything, mock.Anything).Return(nil, tt.serviceErr)
			} else {
				cascades.On("RetrieveCascade", mock.Anything, mock.Anything).Return(billers, nil)
			}

			cascade, err := selector.Build(context.Background(), p, site, fixtures.NewCardPayment(fixtures.TestVisaNumber).Info())

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, domain.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBillers, names(cascade.Billers))
			assert.Equal(t, tt.wantRemoved, names(cascade.Removed))
			assert.Equal(t, -1, cascade.Current)
		})
	}
}

func TestCascadeSelector_SelectSkipsSpentBillers(t *testing.T) {
	selector, _, mappings, _ := setupSelector()
	p := fixtures.NewPurchase().Build()
	site := fixtures.NewSite(p.SiteID)
	p.Cascade = domain.NewCascade([]domain.Biller{{Name: "rocketgate", MaxSubmits: 2}, {Name: "netbilling"}})
	p.RecordBillerSubmit("rocketgate")
	p.RecordBillerSubmit("rocketgate")

	mappings.On("RetrieveBillerMapping", mock.Anything, mock.Anything).
		Return(&domain.BillerMapping{BillerName: "netbilling"}, nil).Once()

	biller, mapping, err := selector.Select(context.Background(), p, site)

	require.NoError(t, err)
	assert.Equal(t, "netbilling", biller.Name)
	assert.Equal(t, "netbilling", mapping.BillerName)
	assert.Equal(t, 1, p.Cascade.Current)

	p.RecordBillerSubmit("netbilling")
	_, _, err = selector.Select(context.Background(), p, site)
	assert.Equal(t, domain.ErrorCodeCascadeExhausted, domain.GetErrorCode(err))
}

func TestCascadeSelector_MappingFailure(t *testing.T) {
	selector, _, mappings, _ := setupSelector()
	p := fixtures.NewPurchase().Build()
	site := fixtures.NewSite(p.SiteID)
	p.Cascade = domain.NewCascade(site.Billers)

	mappings.On("RetrieveBillerMapping", mock.Anything, mock.Anything).Return(nil, errors.New("unknown currency"))

	_, _, err := selector.Select(context.Background(), p, site)

	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeBillerMappingFailed, domain.GetErrorCode(err))
	assert.Contains(t, err.Error(), "unknown currency")
}

func names(billers []domain.Biller) []string {
	if len(billers) == 0 {
		return nil
	}
	out := make([]string, 0, len(billers))
	for _, b := range billers {
		out = append(out, b.Name)
	}
	return out
}

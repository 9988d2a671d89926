package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/database/databasetest"
	"github.com/clarity-dx/bill-review/conf"
)

const migrationsPath = "../../../db/migrations/billreview"

type RepositoryIntegrationTestSuite struct {
	suite.Suite
	repository *Repository
}

func TestRepositoryIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database integration tests in short mode")
	}
	if conf.GetEnv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL is not set")
	}
	suite.Run(t, new(RepositoryIntegrationTestSuite))
}

func (s *RepositoryIntegrationTestSuite) SetupTest() {
	db, _, _ := databasetest.CreateDatabase(s.T(), migrationsPath, true)
	databasetest.LoadFixtures(s.T(), db, "testdata/fixtures")
	s.repository = NewRepository(db)
}

func (s *RepositoryIntegrationTestSuite) TestOrderLookups() {
	ctx := context.Background()

	order, err := s.repository.GetOrder(ctx, constants.TestOrderID)
	s.Require().NoError(err)
	s.Equal("DOE, JANE", order.PatientName)
	s.Nil(order.BundleType)

	lines, err := s.repository.GetOrderLines(ctx, constants.TestOrderID)
	s.NoError(err)
	s.Len(lines, 1)
	s.Equal("RT", lines[0].Modifier)

	provider, err := s.repository.GetProviderDetails(ctx, constants.TestOrderID)
	s.NoError(err)
	s.Equal(constants.TestProviderTIN, provider.TIN)
	s.Equal("Dallas", provider.BillingCity)

	missing, err := s.repository.GetOrder(ctx, "ORD-999999")
	s.NoError(err)
	s.Nil(missing)
}

func (s *RepositoryIntegrationTestSuite) TestIsBundledOrder() {
	bundled, err := s.repository.IsBundledOrder(context.Background(), "ORD-000125")
	s.NoError(err)
	s.True(bundled)

	bundled, err = s.repository.IsBundledOrder(context.Background(), constants.TestOrderID)
	s.NoError(err)
	s.False(bundled)
}

func (s *RepositoryIntegrationTestSuite) TestRates() {
	ctx := context.Background()

	ppo, err := s.repository.GetPPORate(ctx, constants.TestCleanTIN, "73721")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(450).Equal(*ppo))

	ota, err := s.repository.GetOTARate(ctx, "ORD-000125", "95886")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(300).Equal(*ota))

	none, err := s.repository.GetPPORate(ctx, constants.TestCleanTIN, "95886")
	s.NoError(err)
	s.Nil(none)
}

func (s *RepositoryIntegrationTestSuite) TestGetProcCategories() {
	categories, err := s.repository.GetProcCategories(context.Background())
	s.NoError(err)
	s.Equal("Ancillary", categories["A9579"])
	s.Len(categories, 3)
}

package infrastructure_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exportdomain "segmentation/internal/export/domain"
	segdomain "segmentation/internal/segmentation/domain"
	shared "segmentation/internal/shared/domain"
	sharedinfra "segmentation/internal/shared/infrastructure"
	storeinfra "segmentation/internal/store/infrastructure"
	"segmentation/internal/testhelpers"
)

func TestParseURL(t *testing.T) {
	driver, dsn, dialect, err := storeinfra.ParseURL("postgres://u:p@localhost:5432/seg?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "postgres://u:p@localhost:5432/seg?sslmode=disable", dsn)
	assert.Equal(t, sharedinfra.DialectPostgres, dialect)

	driver, dsn, dialect, err = storeinfra.ParseURL("mysql://u:p@db:3306/seg")
	require.NoError(t, err)
	assert.Equal(t, "mysql", driver)
	assert.Equal(t, sharedinfra.DialectMySQL, dialect)
	assert.True(t, strings.HasPrefix(dsn, "u:p@tcp(db:3306)/seg?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")

	_, _, _, err = storeinfra.ParseURL("mysql://db:3306/seg")
	var invalid *shared.ErrInvalidParameter
	assert.True(t, errors.As(err, &invalid))

	_, _, _, err = storeinfra.ParseURL("sqlite:///tmp/seg.db")
	var unsupported *shared.ErrUnsupportedFormat
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "sqlite", unsupported.Extension)
}

func TestStore_CustomersAndStats(t *testing.T) {
	testhelpers.SkipIfNoDatabase(t)
	tc := testhelpers.SetupTestContext(t)
	defer tc.Cleanup()
	ctx := context.Background()

	rows := []exportdomain.ClusterExportRow{
		{CustomerID: "C00001", Segment: 0, SegmentLabel: "Clients Premium", Consumption: 400, DataVolume: 20, Calls: 80},
		{CustomerID: "C00002", Segment: 0, SegmentLabel: "Clients Premium", Consumption: 300, DataVolume: 10, Calls: 60},
		{CustomerID: "C00003", Segment: 1, SegmentLabel: "Clients Fidèles", Consumption: 50, DataVolume: 2, Calls: 20},
		{CustomerID: "C00004", Segment: -1, SegmentLabel: "Bruit", Consumption: 10},
	}
	require.NoError(t, tc.Store.ReplaceCustomers(ctx, tc.RunID, rows))
	// Remplacement idempotent
	require.NoError(t, tc.Store.ReplaceCustomers(ctx, tc.RunID, rows))

	got, err := tc.Store.ListCustomers(ctx, tc.RunID)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	stats, err := tc.Store.SegmentStats(ctx, tc.RunID)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, 0, stats[0].Segment)
	assert.Equal(t, 2, stats[0].Customers)
	assert.InDelta(t, 350, stats[0].AvgConsumption, 1e-9)
	assert.InDelta(t, 700, stats[0].TotalConsumption, 1e-9)
	assert.Equal(t, -1, stats[2].Segment)
}

func TestStore_Offers(t *testing.T) {
	testhelpers.SkipIfNoDatabase(t)
	tc := testhelpers.SetupTestContext(t)
	defer tc.Cleanup()
	ctx := context.Background()

	offers := map[int]segdomain.CommercialOffer{
		1: {Segment: "Clients Fidèles", Name: "Offre Fidélité", Discount: shared.MustNewDiscount(0.1)},
		0: {Segment: "Clients Premium", Name: "Offre Premium", Description: "Pack complet",
			Discount: shared.MustNewDiscount(0.15), Services: []string{"VoD", "Sport"}, PrioritySupport: true},
	}
	require.NoError(t, tc.Store.ReplaceOffers(ctx, tc.RunID, offers))

	got, err := tc.Store.ListOffers(ctx, tc.RunID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Offre Premium", got[0].Offer)
	assert.Equal(t, []string{"VoD", "Sport"}, got[0].Services)
	assert.True(t, got[0].PrioritySupport)
	assert.InDelta(t, 0.1, got[1].Discount.Fraction(), 1e-9)
	assert.Nil(t, got[1].Services)
}

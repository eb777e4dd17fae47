package monitoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitoring-service/testutil"
)

func TestGormBusinessMetricsSource_Collect(t *testing.T) {
	tdb := testutil.NewBusinessTestDB()
	defer tdb.Close()
	factory := testutil.NewTestDataFactory(tdb.DB)

	factory.CreateOrder("completed", 20)
	factory.CreateOrder("completed", 30)
	factory.CreateOrder("completed", 10)
	factory.CreateOrder("cancelled", 99)
	factory.CreateUser("active")
	factory.CreateUser("active")
	factory.CreateUser("inactive")
	factory.CreateChef("active")
	factory.CreateDriver("offline")
	factory.CreateLiveSession("live")
	factory.CreateLiveSession("ended")
	factory.CreateReview(4)
	factory.CreateReview(5)

	metrics, err := NewGormBusinessMetricsSource(tdb.DB).Collect(context.Background())
	require.NoError(t, err)

	require.NotNil(t, metrics.TotalOrders)
	assert.Equal(t, 4.0, *metrics.TotalOrders)
	require.NotNil(t, metrics.TotalRevenue)
	assert.Equal(t, 60.0, *metrics.TotalRevenue)
	assert.Equal(t, 2.0, *metrics.ActiveUsers)
	assert.Equal(t, 1.0, *metrics.ActiveChefs)
	assert.Equal(t, 0.0, *metrics.ActiveDrivers)
	assert.Equal(t, 1.0, *metrics.LiveSessions)
	require.NotNil(t, metrics.OrderCompletionRate)
	assert.Equal(t, 0.75, *metrics.OrderCompletionRate)
	require.NotNil(t, metrics.CustomerSatisfaction)
	assert.Equal(t, 4.5, *metrics.CustomerSatisfaction)
}

func TestGormBusinessMetricsSource_MissingTables(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	metrics, err := NewGormBusinessMetricsSource(tdb.DB).Collect(context.Background())
	assert.Error(t, err)
	assert.Nil(t, metrics.TotalOrders)
	assert.Empty(t, metrics.fields())
}

func TestGormBusinessMetricsSource_EmptyTables(t *testing.T) {
	tdb := testutil.NewBusinessTestDB()
	defer tdb.Close()

	metrics, err := NewGormBusinessMetricsSource(tdb.DB).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, *metrics.TotalOrders)
	assert.Nil(t, metrics.OrderCompletionRate, "无订单时不计算完成率")
	assert.Nil(t, metrics.CustomerSatisfaction, "无评价时平均分为空")
}

package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/model"
)

func TestOrderSorter(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	orders := []model.TransportOrder{
		{Name: "c", CreationTime: base},
		{Name: "b", CreationTime: base.Add(time.Minute), Deadline: base.Add(time.Hour)},
		{Name: "a", CreationTime: base.Add(time.Minute)},
		{Name: "d", CreationTime: base.Add(2 * time.Minute), Deadline: base.Add(30 * time.Minute)},
	}
	sortOrders, err := orderSorter([]string{OrderByDeadline, OrderByAge})
	require.NoError(t, err)
	sortOrders(orders)

	var names []string
	for _, o := range orders {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"d", "b", "c", "a"}, names)

	_, err = orderSorter([]string{"by_name", "BY_MOOD"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

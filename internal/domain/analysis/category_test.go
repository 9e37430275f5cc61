package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapCategory(t *testing.T) {
	tests := []struct {
		label string
		want  Category
	}{
		{"Pothole", CategoryPothole},
		{"severe pothole", CategoryPothole},
		{"Potholes on Main St", CategoryPothole},
		{"asphalt crack", CategoryPothole},
		{"street lamp, lamp post", CategoryStreetlightOut},
		{"overflowing GARBAGE bin", CategoryTrashOverflow},
		{"street art", CategoryGraffiti},
		{"burst pipe", CategoryWaterLeak},
		{"traffic light", CategoryTrafficSignal},
		{"playground", CategoryParkMaintenance},
		{"parking lot", NoOverride},
		{"car", NoOverride},
		{"unknown", NoOverride},
		{"", NoOverride},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, MapCategory(tt.label))
		})
	}
}

func TestCategoriesOrder(t *testing.T) {
	cats := Categories()
	assert.Len(t, cats, 7)
	assert.Equal(t, CategoryPothole, cats[0])
}

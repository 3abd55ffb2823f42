package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetRequest_Normalize(t *testing.T) {
	tests := []struct {
		in   OffsetRequest
		want OffsetRequest
	}{
		{OffsetRequest{}, OffsetRequest{Page: 1, Size: PageDefaultSize}},
		{OffsetRequest{Page: 3, Size: 10}, OffsetRequest{Page: 3, Size: 10}},
		{OffsetRequest{Page: -1, Size: PageMaxSize + 1}, OffsetRequest{Page: 1, Size: PageMaxSize}},
	}
	for _, tt := range tests {
		got := tt.in
		got.Normalize()
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, 20, OffsetRequest{Page: 3, Size: 10}.Offset())
}

func TestNewOffsetResult(t *testing.T) {
	req := OffsetRequest{Page: 2, Size: 2}

	r := NewOffsetResult([]int{3, 4}, 5, req)
	assert.True(t, r.HasMore)

	r = NewOffsetResult([]int{3}, 3, req)
	assert.False(t, r.HasMore)

	empty := NewOffsetResult[int](nil, 0, OffsetRequest{Page: 1, Size: 2})
	assert.NotNil(t, empty.Items)
	assert.False(t, empty.HasMore)
}

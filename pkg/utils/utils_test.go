package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitCSV(" a, b ,,c "))
	assert.Nil(t, SplitCSV(""))
}

func TestPtr(t *testing.T) {
	p := Ptr(5)
	assert.Equal(t, 5, *p)
}

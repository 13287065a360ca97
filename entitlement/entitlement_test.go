package entitlement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/ledger-engine/entitlement"
)

func TestStatic(t *testing.T) {
	s := entitlement.NewStatic("data_export", " ", "future_feature")

	assert.True(t, s.IsEntitled(entitlement.FeatureDataExport))
	assert.False(t, s.IsEntitled(entitlement.FeatureCSVImport))
	assert.True(t, s.IsEntitled("future_feature"))

	var c entitlement.Checker = entitlement.All{}
	assert.True(t, c.IsEntitled(entitlement.FeatureCSVImport))
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/intent"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/opportunity"
)

func TestClassify_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, classify(context.Background(), &buf, "Foundation & concealer from???", "", false))

	out := buf.String()
	assert.Contains(t, out, "PRODUCT_INQUIRY")
	assert.Contains(t, out, "Lexicon:")
	assert.Contains(t, out, "PRODUCT_REF")
	assert.Contains(t, out, "CONSIDERATION")
}

func TestClassify_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, classify(context.Background(), &buf, "I regret buying this foundation, it broke me out", "", true))

	var got classification
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.NotNil(t, got.Result)
	assert.Equal(t, intent.IntentPostPurchaseRegret, got.Result.Primary)
	assert.Equal(t, opportunity.StageRegret, got.Opportunity.Stage)
}

func TestClassify_BadLexiconOverride(t *testing.T) {
	var buf bytes.Buffer
	err := classify(context.Background(), &buf, "hi", "/no/such/lexicon.yaml", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading lexicon")
}
